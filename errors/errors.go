package errors

import (
	stderrors "errors"
	"fmt"
)

// StatementError reports a failed SQL statement. Context is the numbered
// location of the statement (e.g. "export_pumpen (2)"), Statement the SQL
// rendered with its literal values.
type StatementError struct {
	Context   string
	Statement string
	Err       error
}

func NewStatementError(context, statement string, err error) *StatementError {
	return &StatementError{Context: context, Statement: statement, Err: err}
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %v", e.Context, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// AsStatementError returns the first StatementError in err's chain.
func AsStatementError(err error) (*StatementError, bool) {
	var se *StatementError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// APIError is the JSON body returned by the HTTP handlers on failure.
type APIError struct {
	Status  int     `json:"status"`
	Title   string  `json:"title"`
	Details *string `json:"details,omitempty"`
}

func NewAPIError(status int, title string, details *string) *APIError {
	return &APIError{Status: status, Title: title, Details: details}
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s", e.Title, *e.Details)
	}
	return e.Title
}

// GetStatus makes APIError usable as a huma StatusError.
func (e *APIError) GetStatus() int {
	return e.Status
}

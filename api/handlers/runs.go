package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/tebben/qkanhe/errors"
	"github.com/tebben/qkanhe/service"
	"github.com/tebben/qkanhe/session"
)

type StartRunInput struct {
	Kind string `path:"kind" enum:"export,import,results,link" doc:"Pass to start" example:"export"`
}

type StartRunResult struct {
	Status int
	Body   struct {
		RunID string `json:"run_id" doc:"Id of the started pass"`
		Kind  string `json:"kind" doc:"Kind of the started pass"`
	}
}

// StartRunHandler starts a pass in the background. Only one pass runs at a
// time; a second request gets 409.
func StartRunHandler(runner *service.Runner) func(ctx context.Context, input *StartRunInput) (*StartRunResult, error) {
	return func(ctx context.Context, input *StartRunInput) (*StartRunResult, error) {
		runID, err := runner.Start(ctx, input.Kind)
		if stderrors.Is(err, service.ErrBusy) {
			return nil, errors.NewAPIError(http.StatusConflict, "Pass running", nil)
		}
		if err != nil {
			details := err.Error()
			return nil, errors.NewAPIError(http.StatusInternalServerError, "Pass could not be started", &details)
		}

		result := &StartRunResult{Status: http.StatusAccepted}
		result.Body.RunID = runID
		result.Body.Kind = input.Kind
		return result, nil
	}
}

type RunResult struct {
	Body session.Snapshot
}

// LatestRunHandler returns the progress of the running or last pass.
func LatestRunHandler(runner *service.Runner) func(ctx context.Context, input *struct{}) (*RunResult, error) {
	return func(ctx context.Context, input *struct{}) (*RunResult, error) {
		snap, ok := runner.Latest()
		if !ok {
			return nil, errors.NewAPIError(http.StatusNotFound, "No pass started yet", nil)
		}
		return &RunResult{Body: snap}, nil
	}
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tebben/qkanhe/errors"
)

func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	details := fmt.Sprintf("Path '%s' not found", r.URL.Path)
	HandleError(w, errors.NewAPIError(http.StatusNotFound, "Not found", &details))
}

// HandleError writes e as a JSON problem body.
func HandleError(w http.ResponseWriter, e *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
	}
}

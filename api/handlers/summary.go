package handlers

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/tebben/qkanhe/archive"
	"github.com/tebben/qkanhe/errors"
	"github.com/tebben/qkanhe/settings"
)

type SummaryResult struct {
	Body archive.Summary
}

// SummaryHandler summarizes every archived results pass.
func SummaryHandler(config settings.Config) func(ctx context.Context, input *struct{}) (*SummaryResult, error) {
	return func(ctx context.Context, input *struct{}) (*SummaryResult, error) {
		dir := config.Results.ArchiveDir
		if dir == "" {
			return nil, errors.NewAPIError(http.StatusNotFound, "No results archive configured", nil)
		}

		files, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
		if len(files) == 0 {
			return nil, errors.NewAPIError(http.StatusNotFound, "Results archive is empty", nil)
		}

		summary, err := archive.Summarize(ctx, filepath.Join(dir, "*.parquet"))
		if err != nil {
			details := err.Error()
			return nil, errors.NewAPIError(http.StatusInternalServerError, "Summary failed", &details)
		}
		return &SummaryResult{Body: summary}, nil
	}
}

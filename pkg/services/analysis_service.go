package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/core/pkg/errs"
	"github.com/insightloop/core/pkg/models"
	"github.com/insightloop/core/pkg/pipeline"
)

// AnalysisService fronts the pipeline with the per-request end-to-end
// timeout, binding resolution, and envelope wrapping.
type AnalysisService struct {
	pipeline *pipeline.Pipeline
	bindings *BindingService
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAnalysisService creates a new AnalysisService. timeout <= 0 falls
// back to two minutes.
func NewAnalysisService(p *pipeline.Pipeline, bindings *BindingService, timeout time.Duration) *AnalysisService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnalysisService{
		pipeline: p,
		bindings: bindings,
		timeout:  timeout,
		logger:   slog.Default().With("component", "analysis-service"),
	}
}

// Analyze runs one natural-language analysis request end to end. The
// per-request cap propagates into every LLM and SQL call through ctx; on
// expiry the caller sees TIMEOUT, not a SQL-level error.
func (s *AnalysisService) Analyze(ctx context.Context, req models.AnalysisRequest) errs.Envelope[*models.AnalysisResult] {
	if req.Question == "" {
		return errs.Fail[*models.AnalysisResult](errs.New(errs.KindValidation, "question is required", nil))
	}
	if req.DatasourceID == "" {
		return errs.Fail[*models.AnalysisResult](errs.New(errs.KindValidation, "datasource_id is required", nil))
	}

	bindingID, err := s.bindings.ResolveBindingID(req.LLMBindingID, req.Scene)
	if err != nil {
		return errs.Fail[*models.AnalysisResult](asTaxonomy(err))
	}
	req.LLMBindingID = bindingID

	correlationID := uuid.New().String()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.pipeline.Analyze(ctx, req)
	if err != nil {
		te := asTaxonomy(err)
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			te = errs.New(errs.KindTimeout, "analysis exceeded the end-to-end timeout", err)
		case ctx.Err() == context.Canceled:
			te = errs.New(errs.KindCancelled, "analysis cancelled", err)
		}
		if te.Kind == errs.KindInternal {
			s.logger.Error("Analysis failed",
				"correlation_id", correlationID,
				"datasource_id", req.DatasourceID,
				"scene", req.Scene,
				"error", err)
			te.WithDetails(map[string]any{"correlation_id": correlationID})
		}
		// A failed analyze still surfaces whatever partial SQL, attempts,
		// and errors the pipeline gathered, so the correction trail stays
		// inspectable.
		if result != nil {
			te.WithDetails(map[string]any{
				"correlation_id": correlationID,
				"attempts":       result.Attempts,
				"sql":            result.SQL,
				"errors":         result.Errors,
			})
		}
		return errs.Fail[*models.AnalysisResult](te)
	}
	return errs.Ok(result)
}

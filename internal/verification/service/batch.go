package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"credregistry/internal/verification/models"
	"credregistry/internal/verification/tracer"
	dErrors "credregistry/pkg/domain-errors"
	"credregistry/pkg/platform/validation"
)

// VerifyBatch runs on-ledger verification for up to MaxBatchSize codes with
// bounded concurrency. Results keep the input order. The first malformed code
// or ledger failure fails the whole batch.
func (s *Service) VerifyBatch(ctx context.Context, codes []string) (batch *models.BatchResult, err error) {
	if len(codes) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "codes are required")
	}
	if err := validation.CheckSliceCount("codes", len(codes), models.MaxBatchSize); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyBatch, tracer.Int64(tracer.AttrBatchSize, int64(len(codes))))
	defer func() { span.End(err) }()
	if s.metrics != nil {
		s.metrics.ObserveBatchSize(len(codes))
	}

	results := make([]*models.Result, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, code := range codes {
		g.Go(func() error {
			result, err := s.Verify(gctx, models.Request{VerificationCode: code})
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.BatchResult{
		Results: results,
		Summary: models.Summarize(results),
	}, nil
}

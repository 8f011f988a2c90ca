package validation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/observability"
)

// BulkReport summarizes one pass over stale claims.
type BulkReport struct {
	Total     int
	Succeeded int
	Failed    int
	Themes    []int64
	Errors    []string
}

// RevalidateStale revalidates claims with no confidence, zero confidence or
// no support verdict on up to BULK_WORKERS goroutines. A claim that fails is
// counted and never stops the batch. Each affected theme's confidence is
// recomputed once after all claims finish.
func (v *Validator) RevalidateStale(ctx context.Context, limit int) (*BulkReport, error) {
	if limit <= 0 {
		limit = v.cfg.BulkBatchSize
	}

	ids, err := v.repo.ListStaleClaimIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale claims: %w", err)
	}

	report := &BulkReport{Total: len(ids)}
	if len(ids) == 0 {
		return report, nil
	}

	v.logger.Info().Int("claims", len(ids)).Int("workers", v.cfg.BulkWorkers).Msg("bulk revalidation started")

	var (
		mu     sync.Mutex
		themes = make(map[int64]struct{})
		g      errgroup.Group
	)

	g.SetLimit(max(v.cfg.BulkWorkers, 1))

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			rec, result, err := v.revalidate(ctx, id)

			mu.Lock()
			defer mu.Unlock()

			if rec != nil {
				themes[rec.ThemeID] = struct{}{}
			}

			switch {
			case err != nil:
				report.Failed++
				report.Errors = append(report.Errors, err.Error())
				observability.BulkRevalidations.WithLabelValues(observability.StatusError).Inc()
			case result.Status == domain.StatusFailed:
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("claim %d: %s", id, result.Error))
				observability.BulkRevalidations.WithLabelValues(observability.StatusError).Inc()
			default:
				report.Succeeded++
				observability.BulkRevalidations.WithLabelValues(observability.StatusSuccess).Inc()
			}

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors

	for themeID := range themes {
		report.Themes = append(report.Themes, themeID)
	}

	sort.Slice(report.Themes, func(i, j int) bool { return report.Themes[i] < report.Themes[j] })

	for _, themeID := range report.Themes {
		if _, err := v.RecomputeThemeConfidence(ctx, themeID); err != nil {
			report.Errors = append(report.Errors, err.Error())
			v.logger.Error().Err(err).Int64(logKeyThemeID, themeID).Msg("failed to recompute theme confidence")
		}
	}

	v.logger.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("themes", len(report.Themes)).
		Msg("bulk revalidation finished")

	return report, ctx.Err()
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Summary counts what a batch run did with its records.
type Summary struct {
	Processed int            `json:"processed"`
	Ingested  int            `json:"ingested"`
	Skipped   map[string]int `json:"skipped"`
}

func (s Summary) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// Reason classifies the error a record was skipped for.
func Reason(err error) string {
	switch {
	case errors.Is(err, identity.ErrUnresolvableReference):
		return "unresolvable_reference"
	case errors.Is(err, identity.ErrContextMismatch):
		return "context_mismatch"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, source.ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	default:
		return "error"
	}
}

// Run ingests every record of a feed, one transaction per record. A record
// that fails is reported with its natural key and skipped, the batch goes on.
// Cancellation is checked between records, a cancelled run leaves every
// record before it fully written and can be run again from the start.
func (e *Engine) Run(ctx context.Context, feed source.Feed) (summary Summary, err error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	summary.Skipped = map[string]int{}
	defer func() {
		span.SetAttributes(
			attribute.Int("processed", summary.Processed),
			attribute.Int("ingested", summary.Ingested),
			attribute.Int("skipped", summary.SkippedTotal()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch run stopped")
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := feed.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e.tel.ReportBroken(report_ingest_run, fmt.Errorf("read feed: %w", err))
			return summary, err
		}
		summary.Processed++

		kind := metric.WithAttributes(attribute.String("kind", string(rec.Kind)))
		err = e.Ingest(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			reason := Reason(err)
			summary.Skipped[reason]++
			skippedCounter.Add(ctx, 1, kind, metric.WithAttributes(attribute.String("reason", reason)))
			e.tel.ReportWarning(report_ingest_run, rec.Key(), rec.Provenance, reason, err)
			continue
		}
		summary.Ingested++
		ingestedCounter.Add(ctx, 1, kind)
	}

	e.tel.ReportDebug(
		"batch run done",
		summary.Processed, summary.Ingested, summary.SkippedTotal(),
	)
	return summary, nil
}

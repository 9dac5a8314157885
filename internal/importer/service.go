package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/subtrack/internal/observability/logger"
	"github.com/smallbiznis/subtrack/internal/observability/metrics"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RowWarning describes a field that was replaced by its default, or a row
// that could not be imported at all.
type RowWarning struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Result counts rows by outcome. Inserted and Updated are exact when this
// process is the only writer and best-effort otherwise.
type Result struct {
	Inserted int          `json:"inserted"`
	Updated  int          `json:"updated"`
	Failed   int          `json:"failed"`
	Warnings []RowWarning `json:"warnings,omitempty"`
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Subscribers subdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	subscribers subdomain.Service
	metrics     *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:         p.Log.Named("importer.service"),
		subscribers: p.Subscribers,
		metrics:     p.Metrics,
	}
}

// Placeholder is the generated key of the n-th keyless row of a batch.
func Placeholder(n int) string {
	return fmt.Sprintf("C%05d", n)
}

// Import reconciles every row of src with the subscriber store. Each row
// commits on its own; a failing row is counted and skipped. Storage
// failures stop the batch and return the partial result.
func (s *Service) Import(ctx context.Context, src Source) (Result, error) {
	var (
		res      Result
		row      int
		keyless  int
		batchErr error
	)
	for {
		if err := ctx.Err(); err != nil {
			batchErr = err
			break
		}
		fields, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				batchErr = fmt.Errorf("read row %d: %w", row, err)
				break
			}
			res.Failed++
			res.Warnings = append(res.Warnings, RowWarning{Row: row, Message: err.Error()})
			continue
		}

		placeholder := ""
		if fields.Canonical()[subdomain.FieldCustomerNo] == "" {
			keyless++
			placeholder = Placeholder(keyless)
		}

		out, err := s.subscribers.Import(ctx, fields, placeholder)
		for _, issue := range out.Issues {
			res.Warnings = append(res.Warnings, RowWarning{Row: row, Field: issue.Field, Value: issue.Value, Message: issue.Message})
		}
		if err != nil {
			if errors.Is(err, subdomain.ErrStorageUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				batchErr = err
				break
			}
			res.Failed++
			res.Warnings = append(res.Warnings, RowWarning{Row: row, Message: err.Error()})
			continue
		}
		if out.Created {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	s.metrics.AddImportRows(metrics.ImportInserted, res.Inserted)
	s.metrics.AddImportRows(metrics.ImportUpdated, res.Updated)
	s.metrics.AddImportRows(metrics.ImportFailed, res.Failed)
	s.metrics.AddImportRows(metrics.ImportWarning, len(res.Warnings))

	log := logger.WithContext(ctx, s.log)
	fields := []zap.Field{
		zap.Int("rows", row),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Int("warnings", len(res.Warnings)),
	}
	if batchErr != nil {
		log.Warn("import stopped", append(fields, zap.Error(batchErr))...)
		return res, batchErr
	}
	log.Info("import finished", fields...)
	return res, nil
}

// Export writes every subscriber to sink, newest registration first, and
// returns the number of rows written.
func (s *Service) Export(ctx context.Context, sink Sink) (int, error) {
	rows, err := s.subscribers.Export(ctx)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if err := sink.Write(row); err != nil {
			return i, fmt.Errorf("write export row %d: %w", i+1, err)
		}
	}
	if err := sink.Flush(); err != nil {
		return len(rows), fmt.Errorf("flush export: %w", err)
	}
	logger.WithContext(ctx, s.log).Info("export finished", zap.Int("rows", len(rows)))
	return len(rows), nil
}

package persistence

import (
	"context"
	"fmt"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/metrics"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// LineRepository batch-persists DocumentLine rows (ASN_LINES or
// ORDER_LINES) in chunks sized by the adaptive batch sizer.
type LineRepository struct {
	breakers *breaker.Registry
}

// NewLineRepository constructs a repository wrapping all I/O in the
// "repository" breaker.
func NewLineRepository(breakers *breaker.Registry) *LineRepository {
	return &LineRepository{breakers: breakers}
}

// CreateLines validates the batch is non-empty and shares one header and
// one client with no duplicate line numbers, then saves it in chunks of
// batchSize. Each chunk runs under its own savepoint on tx: a chunk
// failure rolls back only that chunk, leaving prior chunks committed
// within the still-open pipeline transaction.
func (r *LineRepository) CreateLines(ctx context.Context, tx *Tx, batchSize int, lines []model.DocumentLine) error {
	if len(lines) == 0 {
		return xgerrors.NewValidationError("line batch is empty", "lines")
	}
	if batchSize <= 0 {
		batchSize = len(lines)
	}

	headerID := lines[0].HeaderID
	clientID := lines[0].ClientID
	seenLineNumbers := make(map[int]bool, len(lines))
	for _, l := range lines {
		if l.HeaderID != headerID || l.ClientID != clientID {
			return xgerrors.NewValidationError("line batch spans multiple headers or clients", "header_id")
		}
		if seenLineNumbers[l.LineNumber] {
			return xgerrors.NewValidationError("duplicate line_number in batch", "line_number")
		}
		seenLineNumbers[l.LineNumber] = true
	}

	for start := 0; start < len(lines); start += batchSize {
		end := start + batchSize
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[start:end]

		spName := fmt.Sprintf("lines_chunk_%d", start)
		chunkStarted := time.Now()
		err := WithSavepoint(ctx, tx, spName, func() error {
			_, execErr := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
				return nil, r.insertChunk(ctx, tx, chunk)
			}, func() (any, error) {
				return nil, xgerrors.NewCircuitOpenError("repository")
			})
			return execErr
		})
		metrics.ObservePersistDuration(time.Since(chunkStarted).Seconds())
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *LineRepository) insertChunk(ctx context.Context, tx *Tx, chunk []model.DocumentLine) error {
	for i := range chunk {
		l := &chunk[i]
		cols := make(map[string]any, len(l.Fields)+3)
		for k, v := range l.Fields {
			cols[k] = v
		}
		cols["header_id"] = l.HeaderID
		cols["client_id"] = l.ClientID
		cols["line_number"] = l.LineNumber

		id, err := insertReturningID(ctx, tx, l.Table, cols)
		if err != nil {
			return xgerrors.NewPersistenceError(fmt.Sprintf("creating document line %d", l.LineNumber), err)
		}
		l.ID = id
	}
	return nil
}

package persistence

import (
	"context"
	"strings"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/metrics"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// HeaderRepository persists DocumentHeader rows (ASN_HEADERS or
// ORDER_HEADERS, selected by h.Table).
type HeaderRepository struct {
	breakers *breaker.Registry
}

// NewHeaderRepository constructs a repository wrapping all I/O in the
// "repository" breaker.
func NewHeaderRepository(breakers *breaker.Registry) *HeaderRepository {
	return &HeaderRepository{breakers: breakers}
}

// CreateHeader validates presence of client and business key, then inserts
// the header inside the caller's transaction. On breaker-open, it performs
// no write at all and returns a CircuitOpenError, exactly like
// LineRepository.CreateLines's fallback.
func (r *HeaderRepository) CreateHeader(ctx context.Context, q Querier, h model.DocumentHeader) (model.DocumentHeader, error) {
	if h.ClientID == 0 {
		return model.DocumentHeader{}, xgerrors.NewValidationError("header missing client_id", "client_id")
	}
	if strings.TrimSpace(h.BusinessKey) == "" {
		return model.DocumentHeader{}, xgerrors.NewValidationError("header missing business key", "business_key")
	}

	start := time.Now()
	result, err := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
		return r.insert(ctx, q, h)
	}, func() (any, error) {
		return nil, xgerrors.NewCircuitOpenError("repository")
	})
	metrics.ObservePersistDuration(time.Since(start).Seconds())
	if err != nil {
		return model.DocumentHeader{}, err
	}
	return result.(model.DocumentHeader), nil
}

func (r *HeaderRepository) insert(ctx context.Context, q Querier, h model.DocumentHeader) (model.DocumentHeader, error) {
	cols := make(map[string]any, len(h.Fields)+2)
	for k, v := range h.Fields {
		cols[k] = v
	}
	cols["client_id"] = h.ClientID
	cols["status"] = h.Status

	id, err := insertReturningID(ctx, q, h.Table, cols)
	if err != nil {
		return model.DocumentHeader{}, xgerrors.NewPersistenceError("creating document header", err)
	}

	h.ID = id
	return h, nil
}

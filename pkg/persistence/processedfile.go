package persistence

import (
	"context"
	"database/sql"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/pkg/breaker"
	"github.com/b2bgate/xmlgate/pkg/model"
)

// ProcessedFileRepository manages the ingestion ledger. Unlike
// HeaderRepository/LineRepository it always operates against a *DB
// (its own connection), never the orchestrator's pipeline *Tx: the
// find-or-create call happens before that transaction opens, and the
// terminal status update must survive a pipeline rollback, so it commits
// independently (see UpdateStatus).
type ProcessedFileRepository struct {
	breakers *breaker.Registry
}

// NewProcessedFileRepository constructs a repository wrapping all I/O in
// the "repository" breaker.
func NewProcessedFileRepository(breakers *breaker.Registry) *ProcessedFileRepository {
	return &ProcessedFileRepository{breakers: breakers}
}

type processedFileRow struct {
	ID           int64          `db:"id"`
	FileName     string         `db:"file_name"`
	ClientID     int64          `db:"client_id"`
	InterfaceID  int64          `db:"interface_id"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
	Content      []byte         `db:"content"`
	ProcessedAt  sql.NullTime   `db:"processed_at"`
}

func (row processedFileRow) toModel() model.ProcessedFile {
	pf := model.ProcessedFile{
		ID:          row.ID,
		FileName:    row.FileName,
		ClientID:    row.ClientID,
		InterfaceID: row.InterfaceID,
		Status:      model.ProcessedFileStatus(row.Status),
		Content:     row.Content,
	}
	if row.ErrorMessage.Valid {
		pf.ErrorMessage = row.ErrorMessage.String
	}
	if row.ProcessedAt.Valid {
		t := row.ProcessedAt.Time
		pf.ProcessedAt = &t
	}
	return pf
}

// FindOrCreate is the idempotent upsert keyed by (file_name, interface_id):
// called twice with the same pair, it returns the same row identity
// without creating a duplicate ledger entry.
func (r *ProcessedFileRepository) FindOrCreate(ctx context.Context, db *DB, fileName string, clientID, interfaceID int64) (model.ProcessedFile, error) {
	result, err := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
		return r.upsert(ctx, db, fileName, clientID, interfaceID)
	}, func() (any, error) {
		return nil, xgerrors.NewCircuitOpenError("repository")
	})
	if err != nil {
		return model.ProcessedFile{}, err
	}
	return result.(model.ProcessedFile), nil
}

func (r *ProcessedFileRepository) upsert(ctx context.Context, db *DB, fileName string, clientID, interfaceID int64) (model.ProcessedFile, error) {
	const query = `
		INSERT INTO processed_files (file_name, client_id, interface_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_name, interface_id)
		DO UPDATE SET file_name = EXCLUDED.file_name
		RETURNING id, file_name, client_id, interface_id, status, error_message, content, processed_at`

	var row processedFileRow
	if err := db.GetContext(ctx, &row, query, fileName, clientID, interfaceID, model.StatusProcessing); err != nil {
		return model.ProcessedFile{}, xgerrors.NewPersistenceError("find-or-create processed file", err)
	}
	return row.toModel(), nil
}

// UpdateStatus transitions a ProcessedFile to its terminal state in a
// transaction of its own, independent of any pipeline transaction the
// caller may have just rolled back.
func (r *ProcessedFileRepository) UpdateStatus(ctx context.Context, db *DB, id int64, status model.ProcessedFileStatus, errorMessage string, content []byte) error {
	_, err := r.breakers.Execute(ctx, "repository", func(ctx context.Context) (any, error) {
		return nil, r.updateStatusTx(ctx, db, id, status, errorMessage, content)
	}, func() (any, error) {
		return nil, xgerrors.NewCircuitOpenError("repository")
	})
	return err
}

func (r *ProcessedFileRepository) updateStatusTx(ctx context.Context, db *DB, id int64, status model.ProcessedFileStatus, errorMessage string, content []byte) error {
	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return xgerrors.NewPersistenceError("opening processed-file status transaction", err)
	}

	const query = `
		UPDATE processed_files
		SET status = $1, error_message = NULLIF($2, ''), content = $3, processed_at = $4
		WHERE id = $5`

	if _, err := tx.ExecContext(ctx, query, status, errorMessage, content, time.Now().UTC(), id); err != nil {
		_ = tx.Rollback()
		return xgerrors.NewPersistenceError("updating processed file status", err)
	}
	if err := tx.Commit(); err != nil {
		return xgerrors.NewPersistenceError("committing processed-file status update", err)
	}
	return nil
}

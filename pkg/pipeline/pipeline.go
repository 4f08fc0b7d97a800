// Package pipeline implements the ingestion orchestrator (C10): it takes
// one inbound MessageEnvelope, resolves its Interface, records it in the
// ProcessedFile ledger, parses and validates the document, dispatches to
// the matching document strategy inside a single transaction, and, once
// the ledger row exists, records SUCCESS or ERROR on it. An envelope whose
// interface, client or ledger row cannot be resolved leaves no row, and a
// run cut off by AsyncTimeout leaves the row in PROCESSING.
package pipeline

import (
	"context"
	"errors"
	"time"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
	"github.com/b2bgate/xmlgate/internal/metrics"
	"github.com/b2bgate/xmlgate/pkg/model"
	"github.com/b2bgate/xmlgate/pkg/persistence"
	"github.com/b2bgate/xmlgate/pkg/schema"
	"github.com/b2bgate/xmlgate/pkg/strategy"
	"github.com/b2bgate/xmlgate/pkg/xmlproc"
)

// InterfaceResolver looks up the Interface and Client an envelope
// references. Root-element/namespace matching (§3's "(client,
// root_element, namespace)" triple) is how a producer adapter derives
// interface_id in the first place; by the time a MessageEnvelope reaches
// the core it already carries that id, so the orchestrator resolves by
// id and leaves root/namespace compatibility to C3.
type InterfaceResolver interface {
	InterfaceByID(ctx context.Context, interfaceID int64) (model.Interface, error)
	ClientByID(ctx context.Context, clientID int64) (model.Client, error)
}

// AsyncTimeout bounds one document's processing; exceeding it leaves the
// ProcessedFile row in PROCESSING rather than forcing a terminal state,
// since the underlying work may still be committing.
const AsyncTimeout = 5 * time.Minute

// Orchestrator wires C2 (xmlproc) through C9 (batch) into one document
// flow, per spec.md §4.10.
type Orchestrator struct {
	db            *persistence.DB
	resolver      InterfaceResolver
	validator     *schema.Validator
	factory       *strategy.Factory
	processedFile *persistence.ProcessedFileRepository
}

// New constructs an Orchestrator from its component dependencies.
func New(db *persistence.DB, resolver InterfaceResolver, validator *schema.Validator, factory *strategy.Factory, processedFile *persistence.ProcessedFileRepository) *Orchestrator {
	return &Orchestrator{
		db:            db,
		resolver:      resolver,
		validator:     validator,
		factory:       factory,
		processedFile: processedFile,
	}
}

// Result summarizes how one envelope was handled.
type Result struct {
	ProcessedFile model.ProcessedFile
	Header        model.DocumentHeader
}

// Process runs the full seven-step flow for one envelope, per spec.md
// §4.10:
//  1. look up Interface by interface_id; missing ⇒ terminal error, no
//     ledger row (the FK from processed_files.interface_id rules one out),
//  2. resolve the Client and find-or-create the ProcessedFile ledger row
//     in PROCESSING,
//  3. parse the document via C2; failure ⇒ ERROR(parse),
//  4. validate via C3 against the resolved interface; failure ⇒
//     ERROR(validation, message=last_error),
//  5. select the strategy for the interface's document type,
//  6. process header+lines inside one transaction,
//  7. on success update the ledger to SUCCESS with canonical content; on
//     failure roll back and update the ledger to ERROR in a separate
//     transaction; the error is then returned, and the worker pool acks or
//     nacks the message from it.
func (o *Orchestrator) Process(ctx context.Context, env model.MessageEnvelope) (Result, error) {
	started := time.Now()

	iface, err := o.resolver.InterfaceByID(ctx, env.InterfaceID)
	if err != nil {
		return Result{}, err
	}

	client, err := o.resolver.ClientByID(ctx, env.ClientID)
	if err != nil {
		return Result{}, err
	}

	pf, err := o.processedFile.FindOrCreate(ctx, o.db, env.FileName, env.ClientID, env.InterfaceID)
	if err != nil {
		return Result{}, err
	}

	header, canonical, procErr := o.process(ctx, client, iface, env)
	if procErr != nil {
		o.markError(ctx, pf.ID, procErr)
		metrics.RecordFileProcessed(string(model.StatusError), iface.Type)
		metrics.RecordFileErrored(errorKind(procErr))
		metrics.ObservePipelineDuration(string(model.StatusError), time.Since(started).Seconds())
		return Result{ProcessedFile: pf}, procErr
	}

	if updErr := o.processedFile.UpdateStatus(ctx, o.db, pf.ID, model.StatusSuccess, "", canonical); updErr != nil {
		return Result{ProcessedFile: pf, Header: header}, updErr
	}
	pf.Status = model.StatusSuccess
	metrics.RecordFileProcessed(string(model.StatusSuccess), iface.Type)
	metrics.ObservePipelineDuration(string(model.StatusSuccess), time.Since(started).Seconds())
	return Result{ProcessedFile: pf, Header: header}, nil
}

// errorKind extracts the taxonomy Kind from a pipeline error for the
// xmlgate_files_errored_total label, falling back to "Unknown" for an
// error that never passed through internal/errors.
func errorKind(err error) string {
	var ue *xgerrors.UserError
	if errors.As(err, &ue) && ue.Kind != "" {
		return string(ue.Kind)
	}
	return "Unknown"
}

// process runs steps 3-6 inside a single transaction, rolling the whole
// thing back on any failure so no partial header/lines survive it. The
// canonical content returned is the re-serialized, validated document —
// stored only on success (see SPEC_FULL §13(b)).
func (o *Orchestrator) process(ctx context.Context, client model.Client, iface model.Interface, env model.MessageEnvelope) (model.DocumentHeader, []byte, error) {
	doc, err := xmlproc.Parse(env.FileBytes)
	if err != nil {
		return model.DocumentHeader{}, nil, err
	}

	if err := o.validator.Validate(doc, iface); err != nil {
		return model.DocumentHeader{}, nil, err
	}

	strat := o.factory.For(iface.Type)
	if strat == nil {
		return model.DocumentHeader{}, nil, xgerrors.NewConfigurationError("no strategy registered", iface.Type)
	}

	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		return model.DocumentHeader{}, nil, err
	}

	header, err := strat.Process(ctx, tx, doc, client, iface)
	if err != nil {
		_ = tx.Rollback()
		return model.DocumentHeader{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return model.DocumentHeader{}, nil, xgerrors.NewPersistenceError("committing pipeline transaction", err)
	}

	canonical, err := xmlproc.Serialize(doc)
	if err != nil {
		return header, nil, xgerrors.NewPersistenceError("serializing canonical document", err)
	}
	return header, canonical, nil
}

// markError records the terminal ERROR state in its own transaction,
// independent of the (already rolled back) pipeline transaction, so the
// ledger entry always survives regardless of what failed. Content is left
// null on error, per SPEC_FULL §13(b). It always runs against a fresh
// background context with its own short deadline: a cancelled ctx (a
// graceful shutdown mid-flight) must not also cancel the write that
// records the resulting ERROR(interrupted) row.
func (o *Orchestrator) markError(ctx context.Context, pfID int64, procErr error) {
	message := procErr.Error()
	if ctx.Err() == context.Canceled {
		message = xgerrors.NewInterruptedError("processing cancelled during graceful shutdown").Error()
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = o.processedFile.UpdateStatus(writeCtx, o.db, pfID, model.StatusError, message, nil)
}

// ProcessAsync runs Process under AsyncTimeout. A timeout leaves the
// ProcessedFile row in PROCESSING rather than forcing ERROR: the
// underlying transaction may still be in flight against the database and
// forcing a terminal state here could race it.
func (o *Orchestrator) ProcessAsync(ctx context.Context, env model.MessageEnvelope) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, AsyncTimeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Process(ctx, env)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, xgerrors.NewTimeoutError("document processing exceeded the async timeout")
	case o := <-done:
		return o.res, o.err
	}
}

// ProcessEnvelope adapts ProcessAsync to pkg/queue.HandlerFunc's shape for
// the worker pool, which only needs to know whether the envelope reached a
// terminal state, not the Result itself.
func (o *Orchestrator) ProcessEnvelope(ctx context.Context, env model.MessageEnvelope) error {
	_, err := o.ProcessAsync(ctx, env)
	return err
}

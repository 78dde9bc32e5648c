package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

const (
	seenCacheSize = 10000
	seenCacheTTL  = 24 * time.Hour
)

// ExportWorker appends one sheet row per ledger event it consumes. Delivery
// is at-least-once, so event ids already written are remembered and skipped.
type ExportWorker struct {
	writer sheets.EventWriter
	seen   cache.Cache[string]
	logger *log.Logger
}

func NewExportWorker(writer sheets.EventWriter, seen cache.Cache[string], logger *log.Logger) *ExportWorker {
	if seen == nil {
		seen = cache.NewLRUCache[string](seenCacheSize, seenCacheTTL)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		writer: writer,
		seen:   seen,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEventMessage exports one consumed message. An undecodable payload is
// logged and acknowledged; a write failure is returned so the message is
// redelivered.
func (w *ExportWorker) HandleEventMessage(ctx context.Context, msg *amqp.EventMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	key := strconv.FormatInt(msg.ID, 10)
	if ref, ok := w.seen.Get(key); ok {
		w.logger.DebugContext(ctx, "Skipping already exported event",
			log.FieldEventID, msg.ID,
			log.FieldSheetsRef, ref)
		return nil
	}

	row, err := sheets.RowFromEvent(msg.Event())
	if err != nil {
		w.logger.ErrorContext(ctx, "Dropping unexportable event",
			log.FieldEventID, msg.ID,
			log.FieldEventKind, msg.Kind,
			log.FieldError, err)
		return nil
	}

	ref, err := w.writer.AppendRow(ctx, row)
	if err != nil {
		return fmt.Errorf("export event %d: %w", msg.ID, err)
	}
	w.seen.Set(key, ref)

	w.logger.InfoContext(ctx, "Exported ledger event",
		log.FieldEventID, msg.ID,
		log.FieldEventKind, msg.Kind,
		log.FieldOwner, msg.Owner,
		log.FieldCategory, msg.Category,
		log.FieldOperation, log.OpExport,
		log.FieldSheetsRef, ref)
	return nil
}

// StartupSync remembers the events already present in the sheet so that
// redeliveries after a restart are not written twice. Writers that cannot
// list their rows are skipped.
func (w *ExportWorker) StartupSync(ctx context.Context) error {
	lister, ok := w.writer.(sheets.RowLister)
	if !ok {
		w.logger.InfoContext(ctx, "Export sink cannot list rows, skipping startup sync")
		return nil
	}
	rows, err := lister.ListRows(ctx)
	if err != nil {
		return fmt.Errorf("list exported rows: %w", err)
	}
	for _, r := range rows {
		w.seen.Set(strconv.FormatInt(r.EventID, 10), "existing")
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		log.FieldOperation, log.OpStartup,
		"rows", len(rows))
	return nil
}

// Package worker persists ledger audit events delivered over AMQP into the
// audit_log relation.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"adox/internal/amqp"
)

// AuditStore is the slice of storage the worker needs.
type AuditStore interface {
	RecordAudit(ctx context.Context, userID int64, action, detail string, at time.Time) error
}

type AuditWorker struct {
	store AuditStore
}

func NewAuditWorker(store AuditStore) *AuditWorker {
	return &AuditWorker{store: store}
}

// HandleEvent processes a single audit event. Returning an error requeues
// the delivery, so the write is retried rather than lost.
func (w *AuditWorker) HandleEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.Action == "" {
		return fmt.Errorf("audit event without action")
	}

	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if err := w.store.RecordAudit(ctx, msg.UserID, msg.Action, msg.Detail, at); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}

	slog.InfoContext(ctx, "Audit event recorded",
		"user_id", msg.UserID,
		"action", msg.Action,
		"detail", msg.Detail)
	return nil
}

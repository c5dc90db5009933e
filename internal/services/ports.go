package services

import (
	"context"
	"time"

	"adox/internal/core"
)

// Ports for the storage layer and the outbound audit pipeline.
type (
	// LedgerStore is the slice of storage the ledger service needs.
	LedgerStore interface {
		AppendTransaction(ctx context.Context, owner int64, d core.Draft) (core.Record, error)
		ListTransactions(ctx context.Context, scope core.Scope) ([]core.Record, error)
		DeleteTransaction(ctx context.Context, scope core.Scope, id string) (bool, error)
		Totals(ctx context.Context, scope core.Scope) (core.Totals, error)
	}

	// SnapshotStore is the slice of storage the snapshot manager needs.
	// CaptureAndClear must read the ledger, store the snapshot and wipe the
	// live rows as one unit, returning exactly the entries it wiped.
	SnapshotStore interface {
		ListTransactions(ctx context.Context, scope core.Scope) ([]core.Record, error)
		ReplaceTransactions(ctx context.Context, owner int64, entries []core.Entry) (int, error)
		SaveSnapshot(ctx context.Context, owner int64, name string, payload []byte, capturedAt time.Time) error
		GetSnapshot(ctx context.Context, owner int64, name string) ([]byte, time.Time, error)
		ListSnapshots(ctx context.Context, owner int64) ([]core.SnapshotInfo, error)
		CaptureAndClear(ctx context.Context, owner int64, name string, capturedAt time.Time) ([]core.Entry, error)
	}

	// AuditPublisher emits ledger mutation events for the audit worker.
	// Publishing is best-effort and never fails the mutating call.
	AuditPublisher interface {
		PublishLedgerEvent(ctx context.Context, userID int64, action, detail string) error
	}
)

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"adox/internal/core"
)

// SnapshotManager owns named point-in-time copies of an owner's ledger:
// capture, restore, and the composite reset-with-backup. Snapshots are
// always owner-scoped, elevated capability or not.
type SnapshotManager struct {
	store SnapshotStore
	audit AuditPublisher // nil disables audit events
}

func NewSnapshotManager(store SnapshotStore, audit AuditPublisher) *SnapshotManager {
	return &SnapshotManager{store: store, audit: audit}
}

// RestoreResult reports what a restore put back into the live ledger.
type RestoreResult struct {
	Name            string
	RecordsRestored int
}

// ResetResult pairs the safety snapshot with the number of live records the
// reset cleared.
type ResetResult struct {
	Snapshot       core.Snapshot
	RecordsCleared int
}

// Capture copies the owner's current ledger, stripped of identifiers, owner
// and creation timestamps, into a snapshot stored under (owner, name). A
// second capture under the same name replaces the prior snapshot entirely.
func (m *SnapshotManager) Capture(ctx context.Context, owner int64, name string) (core.Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Snapshot{}, core.ErrEmptySnapshotName
	}

	entries, err := m.readEntries(ctx, owner)
	if err != nil {
		return core.Snapshot{}, err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("encode snapshot payload: %w", err)
	}

	capturedAt := time.Now().UTC()
	if err := m.store.SaveSnapshot(ctx, owner, name, payload, capturedAt); err != nil {
		return core.Snapshot{}, fmt.Errorf("capture snapshot: %w", err)
	}

	m.publishAudit(ctx, owner, "capture", name)
	return core.Snapshot{Owner: owner, Name: name, Entries: entries, CreatedAt: capturedAt}, nil
}

// Restore replaces the owner's live ledger with the named snapshot's content.
// Restored records get fresh identifiers and creation timestamps; the
// previously-live ledger is discarded without its own snapshot, so callers
// wanting recovery-of-recovery capture first.
func (m *SnapshotManager) Restore(ctx context.Context, owner int64, name string) (RestoreResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RestoreResult{}, core.ErrEmptySnapshotName
	}

	payload, _, err := m.store.GetSnapshot(ctx, owner, name)
	if err != nil {
		return RestoreResult{}, err
	}

	var entries []core.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return RestoreResult{}, fmt.Errorf("decode snapshot payload: %w", err)
	}

	n, err := m.store.ReplaceTransactions(ctx, owner, entries)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("restore snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot restored", "user_id", owner, "name", name, "records", n)
	m.publishAudit(ctx, owner, "restore", name)
	return RestoreResult{Name: name, RecordsRestored: n}, nil
}

// ResetWithBackup captures the owner's ledger under name, then clears the
// live ledger. The read, the capture and the wipe all commit as one storage
// transaction, so the snapshot covers exactly the records the wipe removed
// and the wipe can never run without the snapshot durably in place.
func (m *SnapshotManager) ResetWithBackup(ctx context.Context, owner int64, name string) (ResetResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ResetResult{}, core.ErrEmptySnapshotName
	}

	capturedAt := time.Now().UTC()
	entries, err := m.store.CaptureAndClear(ctx, owner, name, capturedAt)
	if err != nil {
		return ResetResult{}, fmt.Errorf("reset with backup: %w", err)
	}
	cleared := len(entries)

	slog.InfoContext(ctx, "Ledger reset with backup", "user_id", owner, "name", name, "cleared", cleared)
	m.publishAudit(ctx, owner, "reset", name+" cleared="+strconv.Itoa(cleared))
	return ResetResult{
		Snapshot:       core.Snapshot{Owner: owner, Name: name, Entries: entries, CreatedAt: capturedAt},
		RecordsCleared: cleared,
	}, nil
}

// List returns the owner's snapshots, newest capture first.
func (m *SnapshotManager) List(ctx context.Context, owner int64) ([]core.SnapshotInfo, error) {
	infos, err := m.store.ListSnapshots(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return infos, nil
}

// readEntries reads the owner's full ledger in listing order and strips each
// record down to its payload form. The slice is never nil, so an empty
// ledger captures as "[]" rather than "null".
func (m *SnapshotManager) readEntries(ctx context.Context, owner int64) ([]core.Entry, error) {
	records, err := m.store.ListTransactions(ctx, core.ScopeSelf(owner))
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	entries := make([]core.Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rec.Strip())
	}
	return entries, nil
}

func (m *SnapshotManager) publishAudit(ctx context.Context, owner int64, action, detail string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.PublishLedgerEvent(ctx, owner, action, detail); err != nil {
		slog.ErrorContext(ctx, "Failed to publish audit event",
			"error", err, "user_id", owner, "action", action)
	}
}

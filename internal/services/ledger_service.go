package services

import (
	"context"
	"fmt"
	"log/slog"

	"adox/internal/core"
)

// LedgerService fronts the transaction record store: validated appends,
// scoped reads and deletes, and aggregate totals. Cross-owner access is
// resolved to an explicit scope exactly once per call; a non-elevated caller
// asking for the all-owners view is silently narrowed to its own rows.
type LedgerService struct {
	store LedgerStore
	audit AuditPublisher // nil disables audit events
}

func NewLedgerService(store LedgerStore, audit AuditPublisher) *LedgerService {
	return &LedgerService{store: store, audit: audit}
}

// Append validates the draft and inserts it as a new record with a fresh
// identifier and creation timestamp.
func (s *LedgerService) Append(ctx context.Context, owner int64, d core.Draft) (core.Record, error) {
	if err := d.Validate(); err != nil {
		return core.Record{}, err
	}

	rec, err := s.store.AppendTransaction(ctx, owner, d)
	if err != nil {
		return core.Record{}, fmt.Errorf("append transaction: %w", err)
	}

	s.publishAudit(ctx, owner, "append", rec.ID)
	return rec, nil
}

// List returns the caller's visible records, date descending then time
// descending, newest insert first on ties.
func (s *LedgerService) List(ctx context.Context, owner int64, role core.Role, includeAll bool) ([]core.Record, error) {
	records, err := s.store.ListTransactions(ctx, core.ScopeFor(owner, role, includeAll))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return records, nil
}

// Delete removes one record inside the caller's scope and reports whether a
// row was removed. A missing id is a successful no-op.
func (s *LedgerService) Delete(ctx context.Context, owner int64, role core.Role, includeAll bool, id string) (bool, error) {
	removed, err := s.store.DeleteTransaction(ctx, core.ScopeFor(owner, role, includeAll), id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if removed {
		s.publishAudit(ctx, owner, "delete", id)
	}
	return removed, nil
}

// Totals aggregates the caller's visible records.
func (s *LedgerService) Totals(ctx context.Context, owner int64, role core.Role, includeAll bool) (core.Totals, error) {
	totals, err := s.store.Totals(ctx, core.ScopeFor(owner, role, includeAll))
	if err != nil {
		return core.Totals{}, fmt.Errorf("aggregate totals: %w", err)
	}
	return totals, nil
}

func (s *LedgerService) publishAudit(ctx context.Context, owner int64, action, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.PublishLedgerEvent(ctx, owner, action, detail); err != nil {
		// The mutation already committed; losing an audit event is not a
		// reason to fail the request.
		slog.ErrorContext(ctx, "Failed to publish audit event",
			"error", err, "user_id", owner, "action", action)
	}
}

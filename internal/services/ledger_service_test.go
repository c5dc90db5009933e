package services

import (
	"context"
	"errors"
	"testing"

	"adox/internal/core"
)

func validServiceDraft() core.Draft {
	return core.Draft{
		Date: "2025-08-20", Time: "14:30", Client: "Ana Silva", Currency: core.GBP,
		Amount: core.Money{Cents: 1000}, Recipient: "Recipient Name", Disbursed: 16500,
	}
}

func TestAppendValidatesDraft(t *testing.T) {
	store := newStubStore()
	svc := NewLedgerService(store, nil)

	d := validServiceDraft()
	d.Client = "  "
	_, err := svc.Append(context.Background(), 2, d)
	if !errors.Is(err, core.ErrEmptyClient) {
		t.Fatalf("expected ErrEmptyClient, got %v", err)
	}

	records, _ := store.ListTransactions(context.Background(), core.ScopeSelf(2))
	if len(records) != 0 {
		t.Fatal("invalid draft must not reach the store")
	}
}

func TestAppendPublishesAuditEvent(t *testing.T) {
	store := newStubStore()
	audit := &auditRecorder{}
	svc := NewLedgerService(store, audit)

	rec, err := svc.Append(context.Background(), 2, validServiceDraft())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(audit.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(audit.events))
	}
	ev := audit.events[0]
	if ev.userID != 2 || ev.action != "append" || ev.detail != rec.ID {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestAppendSurvivesAuditFailure(t *testing.T) {
	store := newStubStore()
	audit := &auditRecorder{err: errors.New("broker down")}
	svc := NewLedgerService(store, audit)

	if _, err := svc.Append(context.Background(), 2, validServiceDraft()); err != nil {
		t.Fatalf("append should not fail on audit publish error: %v", err)
	}
	records, _ := store.ListTransactions(context.Background(), core.ScopeSelf(2))
	if len(records) != 1 {
		t.Fatalf("expected record saved, got %d", len(records))
	}
}

func TestListScopeDowngrade(t *testing.T) {
	store := newStubStore()
	svc := NewLedgerService(store, nil)
	ctx := context.Background()

	if _, err := svc.Append(ctx, 2, validServiceDraft()); err != nil {
		t.Fatalf("append: %v", err)
	}
	other := validServiceDraft()
	other.Client = "Other Owner"
	if _, err := svc.Append(ctx, 3, other); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A non-elevated caller asking for everything still only sees its own.
	records, err := svc.List(ctx, 2, core.RoleEmployee, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Owner != 2 {
		t.Fatalf("employee scope not downgraded: %+v", records)
	}

	records, err = svc.List(ctx, 1, core.RoleAdmin, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("admin should see both owners, got %d", len(records))
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	store := newStubStore()
	audit := &auditRecorder{}
	svc := NewLedgerService(store, audit)

	removed, err := svc.Delete(context.Background(), 2, core.RoleEmployee, false, "nonexistent-id")
	if err != nil {
		t.Fatalf("delete of missing id must not error: %v", err)
	}
	if removed {
		t.Fatal("expected no row removed")
	}
	if len(audit.events) != 0 {
		t.Fatal("no-op delete must not publish an audit event")
	}
}

func TestDeleteScopeDowngrade(t *testing.T) {
	store := newStubStore()
	svc := NewLedgerService(store, nil)
	ctx := context.Background()

	theirs, err := svc.Append(ctx, 3, validServiceDraft())
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Employee 2 asking for cross-owner delete is narrowed to its own rows.
	removed, err := svc.Delete(ctx, 2, core.RoleEmployee, true, theirs.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed {
		t.Fatal("employee must not delete another owner's record")
	}

	removed, err = svc.Delete(ctx, 1, core.RoleAdmin, true, theirs.ID)
	if err != nil || !removed {
		t.Fatalf("admin delete expected to succeed, removed=%v err=%v", removed, err)
	}
}

func TestTotalsScoped(t *testing.T) {
	store := newStubStore()
	svc := NewLedgerService(store, nil)
	ctx := context.Background()

	mine := validServiceDraft()
	if _, err := svc.Append(ctx, 2, mine); err != nil {
		t.Fatalf("append: %v", err)
	}
	other := validServiceDraft()
	other.Currency = core.EUR
	other.Amount = core.Money{Cents: 2000}
	if _, err := svc.Append(ctx, 3, other); err != nil {
		t.Fatalf("append: %v", err)
	}

	totals, err := svc.Totals(ctx, 2, core.RoleEmployee, false)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Amount(core.GBP).Cents != 1000 || totals.Amount(core.EUR).Cents != 0 {
		t.Fatalf("totals leaked across owners: %+v", totals)
	}
	if totals.Disbursed != 16500 {
		t.Fatalf("expected disbursed 16500, got %d", totals.Disbursed)
	}
}

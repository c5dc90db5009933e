package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"adox/internal/amqp"
)

type recordedAudit struct {
	userID int64
	action string
	detail string
	at     time.Time
}

type stubAuditStore struct {
	rows []recordedAudit
	err  error
}

func (s *stubAuditStore) RecordAudit(_ context.Context, userID int64, action, detail string, at time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, recordedAudit{userID: userID, action: action, detail: detail, at: at})
	return nil
}

func TestHandleEvent(t *testing.T) {
	store := &stubAuditStore{}
	w := NewAuditWorker(store)

	msg := amqp.NewLedgerEventMessage(2, "reset", "week_34 cleared=3")
	if err := w.HandleEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.userID != 2 || row.action != "reset" || row.detail != "week_34 cleared=3" {
		t.Fatalf("unexpected row %+v", row)
	}
	if row.at.IsZero() {
		t.Fatal("timestamp not carried over")
	}
}

func TestHandleEventRejectsEmptyAction(t *testing.T) {
	w := NewAuditWorker(&stubAuditStore{})

	if err := w.HandleEvent(context.Background(), &amqp.LedgerEventMessage{UserID: 2}); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestHandleEventPropagatesStoreError(t *testing.T) {
	store := &stubAuditStore{err: errors.New("database is locked")}
	w := NewAuditWorker(store)

	msg := amqp.NewLedgerEventMessage(2, "append", "id-1")
	if err := w.HandleEvent(context.Background(), msg); err == nil {
		t.Fatal("expected store error to propagate for requeue")
	}
}

func TestHandleEventFillsMissingTimestamp(t *testing.T) {
	store := &stubAuditStore{}
	w := NewAuditWorker(store)

	if err := w.HandleEvent(context.Background(), &amqp.LedgerEventMessage{UserID: 2, Action: "delete"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.rows[0].at.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"adox/internal/core"
)

// stubStore is an in-memory stand-in for the SQLite repository with
// injectable failures, so atomicity contracts can be exercised without a
// database.
type stubStore struct {
	nextID    int
	records   map[int64][]core.Record
	snapshots map[int64]map[string]savedSnapshot

	saveErr    error // SaveSnapshot and CaptureAndClear
	replaceErr error
	listErr    error
}

type savedSnapshot struct {
	payload    []byte
	capturedAt time.Time
}

func newStubStore() *stubStore {
	return &stubStore{
		records:   make(map[int64][]core.Record),
		snapshots: make(map[int64]map[string]savedSnapshot),
	}
}

func (s *stubStore) newID() string {
	s.nextID++
	return fmt.Sprintf("id-%03d", s.nextID)
}

func (s *stubStore) AppendTransaction(_ context.Context, owner int64, d core.Draft) (core.Record, error) {
	rec := core.Record{
		ID: s.newID(), Owner: owner,
		Date: d.Date, Time: d.Time, Client: d.Client, Origin: d.Origin,
		Currency: d.Currency, Amount: d.Amount, Recipient: d.Recipient,
		Bank: d.Bank, Disbursed: d.Disbursed, CreatedAt: time.Now().UTC(),
	}
	s.records[owner] = append(s.records[owner], rec)
	return rec, nil
}

func (s *stubStore) ListTransactions(_ context.Context, scope core.Scope) ([]core.Record, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if !scope.All {
		return append([]core.Record(nil), s.records[scope.Owner]...), nil
	}
	owners := make([]int64, 0, len(s.records))
	for o := range s.records {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	var all []core.Record
	for _, o := range owners {
		all = append(all, s.records[o]...)
	}
	return all, nil
}

func (s *stubStore) DeleteTransaction(_ context.Context, scope core.Scope, id string) (bool, error) {
	for owner, recs := range s.records {
		if !scope.All && owner != scope.Owner {
			continue
		}
		for i, rec := range recs {
			if rec.ID == id {
				s.records[owner] = append(recs[:i:i], recs[i+1:]...)
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *stubStore) Totals(ctx context.Context, scope core.Scope) (core.Totals, error) {
	records, err := s.ListTransactions(ctx, scope)
	if err != nil {
		return core.Totals{}, err
	}
	sums := make(map[core.Currency]int64)
	var totals core.Totals
	for _, rec := range records {
		sums[rec.Currency] += rec.Amount.Cents
		totals.Disbursed += rec.Disbursed
	}
	for _, c := range []core.Currency{core.EUR, core.GBP} {
		if cents, ok := sums[c]; ok {
			totals.ByCurrency = append(totals.ByCurrency, core.CurrencyAmount{
				Currency: c, Amount: core.Money{Cents: cents},
			})
		}
	}
	return totals, nil
}

func (s *stubStore) ReplaceTransactions(ctx context.Context, owner int64, entries []core.Entry) (int, error) {
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	replacement := make([]core.Record, 0, len(entries))
	for _, e := range entries {
		d := e.Draft()
		replacement = append(replacement, core.Record{
			ID: s.newID(), Owner: owner,
			Date: d.Date, Time: d.Time, Client: d.Client, Origin: d.Origin,
			Currency: d.Currency, Amount: d.Amount, Recipient: d.Recipient,
			Bank: d.Bank, Disbursed: d.Disbursed, CreatedAt: time.Now().UTC(),
		})
	}
	s.records[owner] = replacement
	return len(entries), nil
}

func (s *stubStore) SaveSnapshot(_ context.Context, owner int64, name string, payload []byte, capturedAt time.Time) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.snapshots[owner] == nil {
		s.snapshots[owner] = make(map[string]savedSnapshot)
	}
	s.snapshots[owner][name] = savedSnapshot{payload: append([]byte(nil), payload...), capturedAt: capturedAt}
	return nil
}

func (s *stubStore) GetSnapshot(_ context.Context, owner int64, name string) ([]byte, time.Time, error) {
	snap, ok := s.snapshots[owner][name]
	if !ok {
		return nil, time.Time{}, core.ErrSnapshotNotFound
	}
	return snap.payload, snap.capturedAt, nil
}

func (s *stubStore) ListSnapshots(_ context.Context, owner int64) ([]core.SnapshotInfo, error) {
	var infos []core.SnapshotInfo
	for name, snap := range s.snapshots[owner] {
		infos = append(infos, core.SnapshotInfo{Name: name, CreatedAt: snap.capturedAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

func (s *stubStore) CaptureAndClear(ctx context.Context, owner int64, name string, capturedAt time.Time) ([]core.Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	entries := make([]core.Entry, 0, len(s.records[owner]))
	for _, rec := range s.records[owner] {
		entries = append(entries, rec.Strip())
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	// Capture failure leaves the ledger untouched, like the single SQL
	// transaction in the real repository.
	if err := s.SaveSnapshot(ctx, owner, name, payload, capturedAt); err != nil {
		return nil, err
	}
	delete(s.records, owner)
	return entries, nil
}

// auditRecorder captures published audit events for assertions.
type auditRecorder struct {
	events []auditEvent
	err    error
}

type auditEvent struct {
	userID int64
	action string
	detail string
}

func (a *auditRecorder) PublishLedgerEvent(_ context.Context, userID int64, action, detail string) error {
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, auditEvent{userID: userID, action: action, detail: detail})
	return nil
}

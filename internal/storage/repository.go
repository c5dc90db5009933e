// Package storage is the durable SQLite store behind the ledger and the
// snapshot manager. Every mutating method runs as a single SQL transaction,
// so a failure can never leave an owner's ledger half-applied; mutations for
// the same owner serialize on the engine's write transaction while reads for
// unrelated owners proceed concurrently.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"adox/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func storageErr(op string, err error) error {
	return &core.StorageError{Op: op, Err: err}
}

const recordColumns = `id, user_id, date, time, client, origin, currency, amount_cents, recipient, bank, kz, created_at`

const insertRecordSQL = `INSERT INTO transactions (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// AppendTransaction inserts one validated draft as a new record with a fresh
// identifier and creation timestamp.
func (r *Repository) AppendTransaction(ctx context.Context, owner int64, d core.Draft) (core.Record, error) {
	rec := draftToRecord(owner, d)

	if _, err := r.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.Owner, rec.Date, rec.Time, rec.Client, rec.Origin,
		string(rec.Currency), rec.Amount.Cents, rec.Recipient, rec.Bank,
		rec.Disbursed, rec.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return core.Record{}, storageErr("insert transaction", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", rec.ID,
		"user_id", rec.Owner,
		"currency", rec.Currency,
		"amount_cents", rec.Amount.Cents,
		"kz", rec.Disbursed)

	return rec, nil
}

// ListTransactions returns the scoped record set ordered by date descending,
// then time descending, newest insert first on ties. The ordering is part of
// the caller-facing contract, not an accident of storage.
func (r *Repository) ListTransactions(ctx context.Context, scope core.Scope) ([]core.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM transactions`
	var args []any
	if !scope.All {
		query += ` WHERE user_id = ?`
		args = append(args, scope.Owner)
	}
	query += ` ORDER BY date DESC, time DESC, seq DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan transaction", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list transactions", err)
	}
	return records, nil
}

// DeleteTransaction removes one record if it exists inside the scope and
// reports whether a row was removed. A missing id is a no-op, not an error.
func (r *Repository) DeleteTransaction(ctx context.Context, scope core.Scope, id string) (bool, error) {
	query := `DELETE FROM transactions WHERE id = ?`
	args := []any{id}
	if !scope.All {
		query += ` AND user_id = ?`
		args = append(args, scope.Owner)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete transaction", err)
	}
	return n > 0, nil
}

// ReplaceTransactions atomically swaps the owner's entire record set for the
// given entries, assigning each a fresh identifier and creation timestamp.
// On any failure the delete and every insert roll back together.
//
// Entries arrive in listing order (newest first), so they are inserted
// back-to-front: the first entry gets the highest seq and date+time ties
// list in the same order they were captured in.
func (r *Repository) ReplaceTransactions(ctx context.Context, owner int64, entries []core.Entry) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, owner); err != nil {
		return 0, storageErr("clear transactions", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return 0, storageErr("prepare insert", err)
	}
	defer stmt.Close()

	for i := len(entries) - 1; i >= 0; i-- {
		rec := draftToRecord(owner, entries[i].Draft())
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Owner, rec.Date, rec.Time, rec.Client, rec.Origin,
			string(rec.Currency), rec.Amount.Cents, rec.Recipient, rec.Bank,
			rec.Disbursed, rec.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return 0, storageErr("insert replacement transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit replace", err)
	}

	slog.InfoContext(ctx, "Transactions replaced", "user_id", owner, "count", len(entries))
	return len(entries), nil
}

// Totals aggregates the scoped record set: received sums per currency in
// minor units, disbursed sum in whole units. Accumulation stays integral.
func (r *Repository) Totals(ctx context.Context, scope core.Scope) (core.Totals, error) {
	byCurrency := `SELECT currency, COALESCE(SUM(amount_cents), 0) FROM transactions`
	disbursed := `SELECT COALESCE(SUM(kz), 0) FROM transactions`
	var args []any
	if !scope.All {
		byCurrency += ` WHERE user_id = ?`
		disbursed += ` WHERE user_id = ?`
		args = append(args, scope.Owner)
	}
	byCurrency += ` GROUP BY currency ORDER BY currency`

	rows, err := r.db.QueryContext(ctx, byCurrency, args...)
	if err != nil {
		return core.Totals{}, storageErr("sum amounts", err)
	}
	defer rows.Close()

	var totals core.Totals
	for rows.Next() {
		var currency string
		var cents int64
		if err := rows.Scan(&currency, &cents); err != nil {
			return core.Totals{}, storageErr("scan amount sum", err)
		}
		totals.ByCurrency = append(totals.ByCurrency, core.CurrencyAmount{
			Currency: core.Currency(currency),
			Amount:   core.Money{Cents: cents},
		})
	}
	if err := rows.Err(); err != nil {
		return core.Totals{}, storageErr("sum amounts", err)
	}

	if err := r.db.QueryRowContext(ctx, disbursed, args...).Scan(&totals.Disbursed); err != nil {
		return core.Totals{}, storageErr("sum disbursed", err)
	}
	return totals, nil
}

// SaveSnapshot stores a snapshot payload under (owner, name), replacing any
// prior snapshot with the same name in full.
func (r *Repository) SaveSnapshot(ctx context.Context, owner int64, name string, payload []byte, capturedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO backups (user_id, name, payload_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			payload_json = excluded.payload_json,
			created_at = excluded.created_at`,
		owner, name, string(payload), capturedAt.Format(time.RFC3339Nano),
	); err != nil {
		return storageErr("save snapshot", err)
	}

	slog.InfoContext(ctx, "Snapshot saved", "user_id", owner, "name", name)
	return nil
}

// GetSnapshot loads the payload and capture time of a named snapshot.
func (r *Repository) GetSnapshot(ctx context.Context, owner int64, name string) ([]byte, time.Time, error) {
	var payload, createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload_json, created_at FROM backups WHERE user_id = ? AND name = ?`,
		owner, name,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, core.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, time.Time{}, storageErr("get snapshot", err)
	}

	capturedAt, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, time.Time{}, storageErr("parse snapshot timestamp", err)
	}
	return []byte(payload), capturedAt, nil
}

// ListSnapshots returns the owner's snapshot names, newest capture first.
func (r *Repository) ListSnapshots(ctx context.Context, owner int64) ([]core.SnapshotInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, created_at FROM backups WHERE user_id = ? ORDER BY created_at DESC, name`,
		owner,
	)
	if err != nil {
		return nil, storageErr("list snapshots", err)
	}
	defer rows.Close()

	var infos []core.SnapshotInfo
	for rows.Next() {
		var name, createdAt string
		if err := rows.Scan(&name, &createdAt); err != nil {
			return nil, storageErr("scan snapshot", err)
		}
		capturedAt, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, storageErr("parse snapshot timestamp", err)
		}
		infos = append(infos, core.SnapshotInfo{Name: name, CreatedAt: capturedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list snapshots", err)
	}
	return infos, nil
}

// CaptureAndClear reads the owner's ledger, stores it as the named snapshot
// and wipes the live rows, all inside one transaction. Reading inside the
// same transaction means the snapshot covers exactly the rows the wipe
// removes; an append committing alongside either lands after the reset or is
// part of the payload, never silently lost. If the snapshot write fails the
// wipe does not happen.
func (r *Repository) CaptureAndClear(ctx context.Context, owner int64, name string, capturedAt time.Time) ([]core.Entry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin reset", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE user_id = ? ORDER BY date DESC, time DESC, seq DESC`,
		owner,
	)
	if err != nil {
		return nil, storageErr("read ledger", err)
	}
	entries := make([]core.Entry, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("scan transaction", err)
		}
		entries = append(entries, rec.Strip())
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("read ledger", err)
	}
	// The cursor must be drained and closed before the tx writes again.
	if err := rows.Close(); err != nil {
		return nil, storageErr("read ledger", err)
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, storageErr("encode snapshot payload", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backups (user_id, name, payload_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			payload_json = excluded.payload_json,
			created_at = excluded.created_at`,
		owner, name, string(payload), capturedAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, storageErr("save snapshot", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, owner); err != nil {
		return nil, storageErr("clear transactions", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit reset", err)
	}

	slog.InfoContext(ctx, "Ledger reset with backup", "user_id", owner, "name", name, "cleared", len(entries))
	return entries, nil
}

// UserRole reads the capability level of a user. Only id and role are ever
// consumed here; the rest of the users relation belongs to the auth layer.
func (r *Repository) UserRole(ctx context.Context, userID int64) (core.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %d: %w", userID, core.ErrUnknownUser)
	}
	if err != nil {
		return "", storageErr("get user role", err)
	}
	return core.Role(role), nil
}

// SnapshotOwners returns the distinct owners that hold at least one snapshot.
func (r *Repository) SnapshotOwners(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM backups ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("list snapshot owners", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan snapshot owner", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list snapshot owners", err)
	}
	return owners, nil
}

// RecordAudit appends one row to the audit log. Used by the audit worker.
func (r *Repository) RecordAudit(ctx context.Context, userID int64, action, detail string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, action, detail, created_at) VALUES (?, ?, ?, ?)`,
		userID, action, detail, at.Format(time.RFC3339Nano),
	); err != nil {
		return storageErr("record audit", err)
	}
	return nil
}

func draftToRecord(owner int64, d core.Draft) core.Record {
	return core.Record{
		ID:        uuid.NewString(),
		Owner:     owner,
		Date:      d.Date,
		Time:      d.Time,
		Client:    d.Client,
		Origin:    d.Origin,
		Currency:  d.Currency,
		Amount:    d.Amount,
		Recipient: d.Recipient,
		Bank:      d.Bank,
		Disbursed: d.Disbursed,
		CreatedAt: time.Now().UTC(),
	}
}

func scanRecord(rows *sql.Rows) (core.Record, error) {
	var rec core.Record
	var currency, createdAt string
	if err := rows.Scan(
		&rec.ID, &rec.Owner, &rec.Date, &rec.Time, &rec.Client, &rec.Origin,
		&currency, &rec.Amount.Cents, &rec.Recipient, &rec.Bank,
		&rec.Disbursed, &createdAt,
	); err != nil {
		return core.Record{}, err
	}
	rec.Currency = core.Currency(currency)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return core.Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

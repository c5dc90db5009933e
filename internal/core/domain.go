package core

import (
	"errors"
	"strings"
	"time"
)

const (
	GBP Currency = "GBP"
	EUR Currency = "EUR"
)

// DateLayout and TimeLayout are the wire formats for the calendar date and
// time-of-day fields of a record.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type (
	// Currency is one of the fixed set of source currencies the ledger accepts.
	Currency string

	// Record is a single ledger transaction as stored. ID, Owner and CreatedAt
	// are assigned by the store on insert and never change afterwards.
	Record struct {
		ID        string
		Owner     int64
		Date      string // calendar date, DateLayout
		Time      string // time of day, TimeLayout
		Client    string
		Origin    string
		Currency  Currency
		Amount    Money
		Recipient string
		Bank      string
		Disbursed int64 // amount sent, whole local-currency units (Kz)
		CreatedAt time.Time
	}

	// Draft is the caller-supplied part of a Record.
	Draft struct {
		Date      string
		Time      string
		Client    string
		Origin    string
		Currency  Currency
		Amount    Money
		Recipient string
		Bank      string
		Disbursed int64
	}

	// Entry is one stripped record inside a snapshot payload. Identifier,
	// owner and creation timestamp are dropped at capture and re-assigned
	// when the entry is restored into a live ledger.
	Entry struct {
		Date        string   `json:"date"`
		Time        string   `json:"time"`
		Client      string   `json:"client"`
		Origin      string   `json:"origin,omitempty"`
		Currency    Currency `json:"currency"`
		AmountCents int64    `json:"amount_cents"`
		Recipient   string   `json:"recipient"`
		Bank        string   `json:"bank,omitempty"`
		Disbursed   int64    `json:"disbursed"`
	}

	// Snapshot is a named, detached, point-in-time copy of an owner's ledger.
	// It shares no live state with the ledger it was captured from.
	Snapshot struct {
		Owner     int64
		Name      string
		Entries   []Entry
		CreatedAt time.Time
	}

	// SnapshotInfo describes a stored snapshot without its payload.
	SnapshotInfo struct {
		Name      string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidTime       = errors.New("invalid time")
	ErrEmptyClient       = errors.New("empty client name")
	ErrEmptyRecipient    = errors.New("empty recipient")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDisbursed  = errors.New("invalid disbursed amount")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrEmptySnapshotName = errors.New("empty snapshot name")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrUnknownUser       = errors.New("unknown user")
)

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case GBP:
		return GBP, nil
	case EUR:
		return EUR, nil
	}
	return "", ErrInvalidCurrency
}

// Validate checks the required fields and formats of a draft. String fields
// are trimmed in place, so a validated draft is also a normalized one.
func (d *Draft) Validate() error {
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return ErrInvalidDate
	}
	if _, err := time.Parse(TimeLayout, d.Time); err != nil {
		return ErrInvalidTime
	}
	d.Client = strings.TrimSpace(d.Client)
	if d.Client == "" {
		return ErrEmptyClient
	}
	d.Recipient = strings.TrimSpace(d.Recipient)
	if d.Recipient == "" {
		return ErrEmptyRecipient
	}
	d.Origin = strings.TrimSpace(d.Origin)
	d.Bank = strings.TrimSpace(d.Bank)
	if d.Currency != GBP && d.Currency != EUR {
		return ErrInvalidCurrency
	}
	if d.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if d.Disbursed < 0 {
		return ErrInvalidDisbursed
	}
	return nil
}

// Strip converts a live record into its snapshot payload form.
func (r Record) Strip() Entry {
	return Entry{
		Date:        r.Date,
		Time:        r.Time,
		Client:      r.Client,
		Origin:      r.Origin,
		Currency:    r.Currency,
		AmountCents: r.Amount.Cents,
		Recipient:   r.Recipient,
		Bank:        r.Bank,
		Disbursed:   r.Disbursed,
	}
}

// Draft converts a payload entry back into append input for a restore.
func (e Entry) Draft() Draft {
	return Draft{
		Date:      e.Date,
		Time:      e.Time,
		Client:    e.Client,
		Origin:    e.Origin,
		Currency:  e.Currency,
		Amount:    Money{Cents: e.AmountCents},
		Recipient: e.Recipient,
		Bank:      e.Bank,
		Disbursed: e.Disbursed,
	}
}

var validationErrs = []error{
	ErrInvalidDate, ErrInvalidTime, ErrEmptyClient, ErrEmptyRecipient,
	ErrInvalidAmount, ErrInvalidDisbursed, ErrInvalidCurrency, ErrEmptySnapshotName,
}

// IsValidation reports whether err is a caller-correctable input error.
func IsValidation(err error) bool {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means a referenced snapshot or user does
// not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) || errors.Is(err, ErrUnknownUser)
}

// StorageError wraps a failure of the durable store. The contract is that
// when one is returned, the caller's ledger and snapshot set are unchanged
// from before the call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err originates in the durable store.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

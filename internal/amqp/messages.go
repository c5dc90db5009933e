package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage is one audit event emitted after a ledger mutation
// committed. Detail carries the record id for append/delete and the snapshot
// name for capture/restore/reset.
type LedgerEventMessage struct {
	UserID    int64     `json:"user_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(userID int64, action, detail string) *LedgerEventMessage {
	return &LedgerEventMessage{
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

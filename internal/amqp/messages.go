package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LogSyncMessage tells the worker that one user's month changed. The worker
// reads the month back from storage, so the message carries no log data.
type LogSyncMessage struct {
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLogSyncMessage(userID string, year int, month time.Month, reason string) *LogSyncMessage {
	return &LogSyncMessage{
		UserID:    userID,
		Year:      year,
		Month:     int(month),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Validate rejects messages the worker could not act on.
func (m *LogSyncMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("missing user_id")
	}
	if m.Month < 1 || m.Month > 12 {
		return fmt.Errorf("month %d out of range", m.Month)
	}
	if m.Year < 1 {
		return fmt.Errorf("year %d out of range", m.Year)
	}
	return nil
}

// Period returns the month as a time.Month alongside the year.
func (m *LogSyncMessage) Period() (int, time.Month) {
	return m.Year, time.Month(m.Month)
}

func (m *LogSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LogSyncMessageFromJSON decodes and validates a message body.
func LogSyncMessageFromJSON(data []byte) (*LogSyncMessage, error) {
	var msg LogSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log sync message: %w", err)
	}
	return &msg, nil
}

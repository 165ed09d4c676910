// Package realtime fans committed row changes out over NATS.
//
// Each change is published once per row filter on subjects shaped
// <prefix>.<table>.<key>.<value>, plus <prefix>.<table>.id.<record id>, so
// subscribers can follow a table narrowed by a single equality filter.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/example/studymates/internal/application"
)

// DefaultSubjectPrefix roots every change subject.
const DefaultSubjectPrefix = "studymates.changes"

// Event is the wire form of a change.
type Event struct {
	Table      string            `json:"table"`
	Action     string            `json:"action"`
	RecordID   string            `json:"record_id"`
	Filters    map[string]string `json:"filters,omitempty"`
	Record     json.RawMessage   `json:"record,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Feed publishes and subscribes to change events.
type Feed struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewFeed wraps an established connection.
func NewFeed(conn *nats.Conn, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{conn: conn, prefix: DefaultSubjectPrefix, logger: logger}
}

// Subject builds the subject for table narrowed by key=value.
func (f *Feed) Subject(table, key, value string) string {
	return strings.Join([]string{f.prefix, token(table), token(key), token(value)}, ".")
}

// Publish implements application.ChangePublisher.
func (f *Feed) Publish(ctx context.Context, change application.Change) error {
	if f == nil || f.conn == nil {
		return fmt.Errorf("realtime feed is not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	event := Event{
		Table:      change.Table,
		Action:     string(change.Action),
		RecordID:   change.RecordID,
		Filters:    change.Filters,
		OccurredAt: change.OccurredAt.UTC(),
	}
	if change.Record != nil {
		record, err := json.Marshal(change.Record)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", change.Table, err)
		}
		event.Record = record
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", change.Table, err)
	}

	subjects := []string{f.Subject(change.Table, "id", change.RecordID)}
	for key, value := range change.Filters {
		subjects = append(subjects, f.Subject(change.Table, key, value))
	}
	for _, subject := range subjects {
		if err := f.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}
	return nil
}

// Subscribe delivers events for table rows where key equals value. The returned
// function cancels the subscription.
func (f *Feed) Subscribe(table, key, value string, handler func(Event)) (func() error, error) {
	if f == nil || f.conn == nil {
		return nil, fmt.Errorf("realtime feed is not connected")
	}

	subject := f.Subject(table, key, value)
	sub, err := f.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			f.logger.Warn("dropping malformed change event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Flush waits until the server has processed everything published so far.
func (f *Feed) Flush(ctx context.Context) error {
	return f.conn.FlushWithContext(ctx)
}

func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event kinds written to the journal.
const (
	KindUserMessage    = "USER_MESSAGE"
	KindCallback       = "CALLBACK"
	KindAssistantReply = "ASSISTANT_REPLY"
	KindError          = "ERROR"
	KindInfo           = "INFO"
)

// SystemUserID and SystemUsername identify events raised by the bot itself.
const (
	SystemUserID   int64 = 0
	SystemUsername       = "system"
)

// CSVTimeLayout is the timestamp format of exported rows.
const CSVTimeLayout = "2006-01-02 15:04:05"

// Event is one journal row.
type Event struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	UserID *int64
	Kind   string
	Limit  int
}

// AppendEvent stores e. A zero CreatedAt is set to the current time.
func (s *Store) AppendEvent(e Event) error {
	if e.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO events (created_at, user_id, username, kind, text) VALUES (?, ?, ?, ?, ?)`,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.UserID, e.Username, e.Kind, e.Text,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events first.
func (s *Store) ListEvents(f EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := "SELECT id, created_at, user_id, username, kind, text FROM events"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// ExportCSV writes the whole journal, oldest first, as CSV with a header row:
// timestamp, user_id, username, event_type, text.
func (s *Store) ExportCSV(w io.Writer) error {
	rows, err := s.db.Query("SELECT id, created_at, user_id, username, kind, text FROM events ORDER BY id")
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "user_id", "username", "event_type", "text"}); err != nil {
		return err
	}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{
			e.CreatedAt.UTC().Format(CSVTimeLayout),
			strconv.FormatInt(e.UserID, 10),
			e.Username,
			e.Kind,
			e.Text,
		}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		e         Event
		createdAt string
	)
	if err := row.Scan(&e.ID, &createdAt, &e.UserID, &e.Username, &e.Kind, &e.Text); err != nil {
		return Event{}, fmt.Errorf("scanning event: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = t
	return e, nil
}

// Package reply models what the assistant returns for a single turn and
// collapses it into a canonical category/description record.
package reply

import (
	"errors"
	"fmt"
)

// Kind tags the variant held by Raw.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindStructured
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Raw is plain text, an already-decoded mapping, or a failure message meant
// for the user. The zero value holds none of them and is rejected by Normalize.
type Raw struct {
	kind   Kind
	text   string
	fields map[string]any
}

// Text wraps a plain string reply.
func Text(s string) Raw {
	return Raw{kind: KindText, text: s}
}

// Structured wraps a decoded mapping.
func Structured(fields map[string]any) Raw {
	return Raw{kind: KindStructured, fields: fields}
}

// Failure wraps a user-facing message for a turn the backend could not answer.
func Failure(message string) Raw {
	return Raw{kind: KindFailure, text: message}
}

func (r Raw) Kind() Kind { return r.kind }

// Failed reports whether r holds a backend failure.
func (r Raw) Failed() bool { return r.kind == KindFailure }

// String returns the text of a Text or Failure reply, or "" for a mapping.
func (r Raw) String() string { return r.text }

// Fields returns the mapping of a Structured reply, or nil.
func (r Raw) Fields() map[string]any { return r.fields }

const (
	KeyCategory    = "category"
	KeyDescription = "description"
)

// Record is a canonical reply mapping. Known aliases have been folded into
// KeyCategory and KeyDescription; any other keys are kept as they came.
type Record map[string]any

// NewRecord builds a record from a category and description.
func NewRecord(category, description string) Record {
	return Record{KeyCategory: category, KeyDescription: description}
}

// Category returns the category field if it is a string.
func (r Record) Category() (string, bool) {
	s, ok := r[KeyCategory].(string)
	return s, ok
}

// Description returns the description field if it is a string.
func (r Record) Description() (string, bool) {
	s, ok := r[KeyDescription].(string)
	return s, ok
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Item is a validated wardrobe entry.
type Item struct {
	Category    string
	Description string
}

// Item validates that both fields are present and are strings.
func (r Record) Item() (Item, error) {
	if r == nil {
		return Item{}, &InvalidItemError{Field: KeyCategory, Reason: "no data"}
	}
	category, ok := r.Category()
	if !ok {
		return Item{}, invalidField(r, KeyCategory)
	}
	description, ok := r.Description()
	if !ok {
		return Item{}, invalidField(r, KeyDescription)
	}
	return Item{Category: category, Description: description}, nil
}

func invalidField(r Record, key string) *InvalidItemError {
	v, present := r[key]
	if !present {
		return &InvalidItemError{Field: key, Reason: "missing"}
	}
	return &InvalidItemError{Field: key, Reason: fmt.Sprintf("expected text, got %T", v)}
}

var (
	// ErrNoReply means the assistant returned nothing usable.
	ErrNoReply = errors.New("no reply from assistant")
	// ErrMalformed means the reply text could not be decoded into a mapping.
	ErrMalformed = errors.New("malformed assistant reply")
	// ErrUnsupported means the reply is neither text nor a mapping.
	ErrUnsupported = errors.New("unsupported reply format")
	// ErrInvalidItem means a record lacks a text category or description.
	ErrInvalidItem = errors.New("invalid item")
)

// MalformedError carries the original reply text for diagnostics.
type MalformedError struct {
	Raw   string
	Cause error
}

func (e *MalformedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", ErrMalformed, e.Cause)
	}
	return ErrMalformed.Error()
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// InvalidItemError names the offending field.
type InvalidItemError struct {
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidItem, e.Field, e.Reason)
}

func (e *InvalidItemError) Unwrap() error {
	return ErrInvalidItem
}

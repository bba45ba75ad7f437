package wardrobe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrEmptyCategory is returned when a category is blank after normalisation.
	ErrEmptyCategory = errors.New("category is empty")
	// ErrUnreadableEntry is returned when adding to a user whose stored entry
	// does not have the category -> items shape. The entry is left untouched.
	ErrUnreadableEntry = errors.New("stored wardrobe entry is unreadable")
)

// Document maps user id -> category -> descriptions in insertion order.
type Document map[string]map[string][]string

// BulkItem is one entry of a bulk add request.
type BulkItem struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Size  string `json:"size"`
}

// BulkResult summarises a bulk add.
type BulkResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Store persists the wardrobe document as a single JSON file. Every mutation
// rewrites the whole file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by the file at path. The file is created on
// first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file yields an empty document; a
// malformed one is logged and also yields an empty document. User entries
// that are not category -> items maps are left out of the result but are
// kept in the file by later saves.
func (s *Store) Load() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, _ := s.load()
	return doc
}

func (s *Store) load() (Document, map[string]json.RawMessage) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("reading wardrobe file", "path", s.path, "error", err)
		}
		return Document{}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		slog.Warn("wardrobe file is not a JSON object, starting empty", "path", s.path, "error", err)
		return Document{}, nil
	}

	doc := make(Document, len(top))
	var unreadable map[string]json.RawMessage
	for userID, raw := range top {
		var cats map[string][]string
		if err := json.Unmarshal(raw, &cats); err != nil {
			slog.Warn("keeping unreadable wardrobe entry as is", "user_id", userID, "error", err)
			if unreadable == nil {
				unreadable = make(map[string]json.RawMessage)
			}
			unreadable[userID] = raw
			continue
		}
		if cats == nil {
			continue
		}
		doc[userID] = cats
	}
	return doc, unreadable
}

// Save overwrites the backing file with doc. Unreadable user entries already
// in the file are written back unchanged unless doc has an entry for the same
// user. The write goes to a temporary file in the same directory which is then
// renamed over the target.
func (s *Store) Save(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, unreadable := s.load()
	return s.save(doc, unreadable)
}

func (s *Store) save(doc Document, unreadable map[string]json.RawMessage) error {
	if err := s.write(doc, unreadable); err != nil {
		slog.Error("saving wardrobe", "path", s.path, "error", err)
		return err
	}
	return nil
}

func (s *Store) write(doc Document, unreadable map[string]json.RawMessage) error {
	out := make(map[string]any, len(doc)+len(unreadable))
	for userID, raw := range unreadable {
		out[userID] = raw
	}
	for userID, cats := range doc {
		out[userID] = cats
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding wardrobe: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating wardrobe directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing wardrobe file: %w", err)
	}
	return nil
}

// AddItem appends description under the normalised category for userID.
func (s *Store) AddItem(userID, category, description string) error {
	category = NormalizeCategory(category)
	if category == "" {
		return ErrEmptyCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, unreadable := s.load()
	if _, bad := unreadable[userID]; bad {
		return fmt.Errorf("user %s: %w", userID, ErrUnreadableEntry)
	}
	doc.append(userID, category, description)
	if err := s.save(doc, unreadable); err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	slog.Info("wardrobe item added", "user_id", userID, "category", category)
	return nil
}

// BulkAdd appends every item, composing "<name>, <color>, размер <size>" as the
// description and using the upper-cased type as the category.
func (s *Store) BulkAdd(userID string, items []BulkItem) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, unreadable := s.load()
	if _, bad := unreadable[userID]; bad {
		return BulkResult{}, fmt.Errorf("user %s: %w", userID, ErrUnreadableEntry)
	}
	added := 0
	for _, it := range items {
		category := toUpper(strings.TrimSpace(it.Type))
		if category == "" {
			slog.Warn("bulk add: skipping item without type", "user_id", userID, "name", it.Name)
			continue
		}
		doc.append(userID, category, fmt.Sprintf("%s, %s, размер %s", it.Name, it.Color, it.Size))
		added++
	}
	if err := s.save(doc, unreadable); err != nil {
		return BulkResult{}, fmt.Errorf("saving items: %w", err)
	}
	return BulkResult{
		Status:  "ok",
		Message: fmt.Sprintf("%d items added to wardrobe", added),
	}, nil
}

// UserItems returns the categories and items stored for userID.
func (s *Store) UserItems(userID string) map[string][]string {
	items := s.Load()[userID]
	if items == nil {
		return map[string][]string{}
	}
	return items
}

func (d Document) append(userID, category, description string) {
	cats, ok := d[userID]
	if !ok || cats == nil {
		cats = make(map[string][]string)
		d[userID] = cats
	}
	cats[category] = append(cats[category], description)
}

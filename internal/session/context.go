// Package session holds per-user conversation state: the add-item workflow
// stage, the last downloaded photo, and the assistant conversation thread.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/stylebot/internal/reply"
)

// Stage is the step of a user's add-to-wardrobe workflow.
type Stage string

const (
	StageNone               Stage = ""
	StageAwaitingAddPhoto   Stage = "awaiting_add_photo"
	StageConfirmAdd         Stage = "confirm_add"
	StageAwaitingManualEdit Stage = "awaiting_manual_edit"
)

func (s Stage) String() string {
	if s == StageNone {
		return "none"
	}
	return string(s)
}

// State is a snapshot of one user's workflow.
type State struct {
	Stage   Stage
	Pending reply.Record // nil when nothing is pending
	Updated time.Time
}

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation thread.
type Turn struct {
	Role    string
	Content string
}

// Thread is a user's conversation with the assistant.
type Thread struct {
	ID      string
	Created time.Time
	Turns   []Turn
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Context owns every per-user map. All methods are safe for concurrent use and
// return copies, so callers never alias internal state.
type Context struct {
	mu       sync.Mutex
	clock    Clock
	sessions map[int64]State
	photos   map[int64]string
	threads  map[int64]*Thread
}

// New returns an empty Context.
func New() *Context {
	return NewWithClock(realClock{})
}

// NewWithClock returns an empty Context using clock for timestamps.
func NewWithClock(clock Clock) *Context {
	return &Context{
		clock:    clock,
		sessions: make(map[int64]State),
		photos:   make(map[int64]string),
		threads:  make(map[int64]*Thread),
	}
}

// State returns the user's current state; unknown users are in StageNone.
func (c *Context) State(userID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessions[userID]
	if st.Pending != nil {
		st.Pending = st.Pending.Clone()
	}
	return st
}

// SetStage moves the user to stage, keeping any pending record.
func (c *Context) SetStage(userID int64, stage Stage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessions[userID]
	st.Stage = stage
	st.Updated = c.clock.Now()
	c.sessions[userID] = st
}

// SetPending moves the user to stage with rec as the pending record.
func (c *Context) SetPending(userID int64, stage Stage, rec reply.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pending reply.Record
	if rec != nil {
		pending = rec.Clone()
	}
	c.sessions[userID] = State{Stage: stage, Pending: pending, Updated: c.clock.Now()}
}

// Reset returns the user to StageNone and drops any pending record.
func (c *Context) Reset(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
}

// CachePhoto remembers the local path of the user's last photo.
func (c *Context) CachePhoto(userID int64, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.photos[userID] = path
}

// Photo returns the cached photo path, if any.
func (c *Context) Photo(userID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.photos[userID]
	return p, ok
}

// Thread returns the user's conversation thread, creating it on first use.
func (c *Context) Thread(userID int64) Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	th := c.thread(userID)
	out := *th
	out.Turns = append([]Turn(nil), th.Turns...)
	return out
}

// AppendTurns adds turns to the user's thread, keeping at most limit turns
// (oldest dropped first). limit <= 0 keeps everything.
func (c *Context) AppendTurns(userID int64, limit int, turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	th := c.thread(userID)
	th.Turns = append(th.Turns, turns...)
	if limit > 0 && len(th.Turns) > limit {
		th.Turns = append([]Turn(nil), th.Turns[len(th.Turns)-limit:]...)
	}
}

func (c *Context) thread(userID int64) *Thread {
	th, ok := c.threads[userID]
	if !ok {
		th = &Thread{ID: uuid.NewString(), Created: c.clock.Now()}
		c.threads[userID] = th
	}
	return th
}

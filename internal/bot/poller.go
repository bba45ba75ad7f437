package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/telegram"
)

// UpdateSource long-polls for updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// UpdateHandler handles one update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

// EventAppender records events raised by the poller itself.
type EventAppender interface {
	AppendEvent(e storage.Event) error
}

// Poller feeds updates to a handler one at a time, in order.
type Poller struct {
	src     UpdateSource
	handler UpdateHandler
	journal EventAppender
	timeout time.Duration
	delay   time.Duration
	offset  int64
	logger  *slog.Logger
}

// NewPoller creates a Poller. timeout is the long-poll timeout passed to the
// source; delay is the pause between batches and defaults to one second.
func NewPoller(src UpdateSource, handler UpdateHandler, journal EventAppender, timeout, delay time.Duration) *Poller {
	if delay <= 0 {
		delay = time.Second
	}
	return &Poller{
		src:     src,
		handler: handler,
		journal: journal,
		timeout: timeout,
		delay:   delay,
		logger:  slog.Default(),
	}
}

// Offset is the id of the next update the poller will ask for.
func (p *Poller) Offset() int64 { return p.offset }

// RunOnce fetches one batch and handles every update in it. It returns the
// number of updates handled.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	updates, err := p.src.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return 0, fmt.Errorf("getting updates: %w", err)
	}
	for i, u := range updates {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		p.handler.HandleUpdate(ctx, u)
		p.offset = u.UpdateID + 1
	}
	return len(updates), nil
}

// Run polls until ctx is cancelled. Transport errors are logged and polling
// continues. A panic is journaled under the system identity and re-raised.
func (p *Poller) Run(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poller crashed", "panic", r)
			p.crash(r)
			panic(r)
		}
	}()

	p.logger.Info("polling started", "offset", p.offset, "timeout", p.timeout)
	for {
		if ctx.Err() != nil {
			p.logger.Info("polling stopped", "offset", p.offset)
			return nil
		}

		n, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("poll iteration failed", "error", err)
		} else if n > 0 {
			p.logger.Debug("updates handled", "count", n, "offset", p.offset)
		}

		select {
		case <-ctx.Done():
		case <-time.After(p.delay):
		}
	}
}

func (p *Poller) crash(r any) {
	if p.journal == nil {
		return
	}
	err := p.journal.AppendEvent(storage.Event{
		UserID:   storage.SystemUserID,
		Username: storage.SystemUsername,
		Kind:     storage.KindError,
		Text:     fmt.Sprintf("bot crashed: %v", r),
	})
	if err != nil {
		p.logger.Warn("journal write failed", "error", err)
	}
}

// Package bot drives the Telegram conversation: it routes commands, photos,
// voice notes, text and button presses through the add-to-wardrobe workflow.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kalambet/stylebot/internal/assistant"
	"github.com/kalambet/stylebot/internal/reply"
	"github.com/kalambet/stylebot/internal/session"
	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/telegram"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

// Messenger is the subset of the Telegram client the handler uses.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader) error
	DownloadFile(ctx context.Context, fileID, dir string) (string, error)
}

// Assistant answers one user turn.
type Assistant interface {
	Ask(ctx context.Context, userID int64, in assistant.Input) reply.Raw
}

// Wardrobe is the slice of the wardrobe store used by the handler.
type Wardrobe interface {
	AddItem(userID, category, description string) error
	UserItems(userID string) map[string][]string
}

// Journal is the event log.
type Journal interface {
	AppendEvent(e storage.Event) error
	ExportCSV(w io.Writer) error
}

var errNoJournal = errors.New("event log is not configured")

// Deps wires a Handler.
type Deps struct {
	Messenger   Messenger
	Assistant   Assistant
	Wardrobe    Wardrobe
	Journal     Journal
	State       *session.Context
	AdminUserID int64 // 0 disables /get_logs for everyone
	TempDir     string
}

// Handler processes one update at a time.
type Handler struct {
	msg      Messenger
	ai       Assistant
	wardrobe Wardrobe
	journal  Journal
	state    *session.Context
	adminID  int64
	tempDir  string
	logger   *slog.Logger
}

// NewHandler creates a Handler. A nil State gets a fresh session context.
func NewHandler(d Deps) *Handler {
	state := d.State
	if state == nil {
		state = session.New()
	}
	return &Handler{
		msg:      d.Messenger,
		ai:       d.Assistant,
		wardrobe: d.Wardrobe,
		journal:  d.Journal,
		state:    state,
		adminID:  d.AdminUserID,
		tempDir:  d.TempDir,
		logger:   slog.Default(),
	}
}

// HandleUpdate routes a single update. Errors are reported to the user and
// logged; nothing is returned to the poller.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		h.handleMessage(ctx, u.Message)
	default:
		h.logger.Debug("skipping update without message", "update_id", u.UpdateID)
	}
}

// turn identifies who sent an inbound event and where to answer.
type turn struct {
	userID   int64
	username string
	chatID   int64
}

func (t turn) uid() string { return strconv.FormatInt(t.userID, 10) }

func (h *Handler) handleMessage(ctx context.Context, m *telegram.Message) {
	t := turn{userID: m.Chat.ID, chatID: m.Chat.ID}
	if m.From != nil {
		t.userID = m.From.ID
		t.username = m.From.DisplayName()
	}
	h.record(t, storage.KindUserMessage, describeMessage(m))

	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") && h.handleCommand(ctx, t, text) {
		return
	}

	switch {
	case len(m.Photo) > 0:
		h.handlePhoto(ctx, t, m.Photo)
	case m.Voice != nil:
		h.handleVoice(ctx, t, m.Voice)
	case text != "":
		if h.state.State(t.userID).Stage == session.StageAwaitingManualEdit {
			h.handleManualEdit(ctx, t, text)
			return
		}
		h.handleText(ctx, t, text)
	default:
		h.send(ctx, t, msgUnsupported, nil)
	}
}

func describeMessage(m *telegram.Message) string {
	switch {
	case m.Text != "":
		return m.Text
	case len(m.Photo) > 0:
		return "[photo]"
	case m.Voice != nil:
		return "[voice]"
	default:
		return "[unknown message]"
	}
}

// handleCommand reports whether text was a known command.
func (h *Handler) handleCommand(ctx context.Context, t turn, text string) bool {
	name := strings.Fields(text)[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}

	switch strings.ToLower(name) {
	case cmdStart, cmdHelp:
		h.send(ctx, t, msgHelp, nil)
	case cmdAddWardrobe:
		h.state.SetPending(t.userID, session.StageAwaitingAddPhoto, nil)
		h.send(ctx, t, msgSendPhoto, nil)
	case cmdWardrobe:
		h.send(ctx, t, wardrobe.FormatListing(h.wardrobe.UserItems(t.uid())), nil)
	case cmdCancel:
		h.state.Reset(t.userID)
		h.send(ctx, t, msgCancelled, nil)
	case cmdGetLogs:
		h.sendLogs(ctx, t)
	default:
		return false
	}
	return true
}

func (h *Handler) sendLogs(ctx context.Context, t turn) {
	if h.adminID == 0 || t.userID != h.adminID {
		h.logger.Warn("log export refused", "user_id", t.userID)
		h.send(ctx, t, msgNoAccess, nil)
		return
	}
	if h.journal == nil {
		h.fail(ctx, t, msgLogsFailed, errNoJournal)
		return
	}
	var buf bytes.Buffer
	if err := h.journal.ExportCSV(&buf); err != nil {
		h.fail(ctx, t, msgLogsFailed, err)
		return
	}
	if err := h.msg.SendDocument(ctx, t.chatID, logsFilename, &buf); err != nil {
		h.logger.Error("sending log export", "user_id", t.userID, "error", err)
		h.record(t, storage.KindError, err.Error())
	}
}

func (h *Handler) handlePhoto(ctx context.Context, t turn, sizes []telegram.PhotoSize) {
	if h.state.State(t.userID).Stage != session.StageAwaitingAddPhoto {
		h.send(ctx, t, msgNeedAddCommand, nil)
		return
	}

	// Telegram lists sizes smallest first.
	largest := sizes[len(sizes)-1]
	path, err := h.msg.DownloadFile(ctx, largest.FileID, h.tempDir)
	if err != nil {
		h.fail(ctx, t, msgDownloadFailed, err)
		return
	}
	h.state.CachePhoto(t.userID, path)
	h.recognize(ctx, t, path)
}

// recognize classifies the photo at path and, on success, asks the user to
// confirm the result. On failure the stage is left as it was.
func (h *Handler) recognize(ctx context.Context, t turn, path string) {
	raw := h.ai.Ask(ctx, t.userID, assistant.ImageInput(path))
	if raw.Failed() {
		h.send(ctx, t, raw.String(), nil)
		return
	}

	rec, err := reply.Normalize(raw)
	if err != nil {
		h.logger.Warn("unusable classifier reply", "user_id", t.userID, "error", err)
		h.record(t, storage.KindError, err.Error())

		var malformed *reply.MalformedError
		switch {
		case errors.Is(err, reply.ErrNoReply):
			h.send(ctx, t, msgEmptyReply, nil)
		case errors.As(err, &malformed):
			h.send(ctx, t, malformedText(err, malformed.Raw), nil)
		default:
			h.send(ctx, t, msgRecognizeFailed+err.Error(), nil)
		}
		return
	}

	item, err := rec.Item()
	if err != nil {
		h.fail(ctx, t, msgRecognizeFailed, err)
		return
	}
	if !wardrobe.IsKnownCategory(item.Category) {
		h.logger.Debug("classifier returned unlisted category", "user_id", t.userID, "category", item.Category)
	}

	h.state.SetPending(t.userID, session.StageConfirmAdd, rec)
	h.send(ctx, t, confirmText(item), confirmKeyboard())
}

func (h *Handler) handleVoice(ctx context.Context, t turn, v *telegram.Voice) {
	path, err := h.msg.DownloadFile(ctx, v.FileID, h.tempDir)
	if err != nil {
		h.fail(ctx, t, msgDownloadFailed, err)
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("removing voice file", "path", path, "error", err)
		}
	}()

	raw := h.ai.Ask(ctx, t.userID, assistant.AudioInput(path))
	h.send(ctx, t, formatReply(raw), nil)
}

func (h *Handler) handleText(ctx context.Context, t turn, text string) {
	raw := h.ai.Ask(ctx, t.userID, assistant.TextInput(text))
	h.send(ctx, t, formatReply(raw), nil)
}

// handleManualEdit replaces the pending description with text.
func (h *Handler) handleManualEdit(ctx context.Context, t turn, text string) {
	st := h.state.State(t.userID)
	if st.Pending == nil {
		h.state.Reset(t.userID)
		h.send(ctx, t, msgNoData, nil)
		return
	}
	category, ok := st.Pending.Category()
	if !ok {
		h.state.Reset(t.userID)
		h.send(ctx, t, msgCategoryLost, nil)
		return
	}

	rec := st.Pending.Clone()
	rec[reply.KeyDescription] = text
	h.state.SetPending(t.userID, session.StageConfirmAdd, rec)
	h.send(ctx, t, fmt.Sprintf("Категория: %s\nНовое описание:\n%s", category, text), confirmKeyboard())
}

func (h *Handler) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	t := turn{userID: q.From.ID, username: q.From.DisplayName(), chatID: q.From.ID}
	if q.Message != nil {
		t.chatID = q.Message.Chat.ID
	}
	h.record(t, storage.KindCallback, "[callback] "+q.Data)

	if err := h.msg.AnswerCallbackQuery(ctx, q.ID); err != nil {
		h.logger.Warn("answering callback", "user_id", t.userID, "error", err)
	}

	switch q.Data {
	case CallbackCommit:
		h.commit(ctx, t)
	case CallbackEdit:
		if h.state.State(t.userID).Pending == nil {
			h.send(ctx, t, msgNoData, nil)
			return
		}
		h.send(ctx, t, msgChooseAction, editKeyboard())
	case CallbackManual:
		if h.state.State(t.userID).Pending == nil {
			h.state.Reset(t.userID)
			h.send(ctx, t, msgNoData, nil)
			return
		}
		h.state.SetStage(t.userID, session.StageAwaitingManualEdit)
		h.send(ctx, t, msgEnterText, nil)
	case CallbackRetry:
		path, ok := h.state.Photo(t.userID)
		if !ok {
			h.send(ctx, t, msgNoCachedPhoto, nil)
			return
		}
		h.recognize(ctx, t, path)
	default:
		h.logger.Warn("unknown callback data", "user_id", t.userID, "data", q.Data)
	}
}

// commit stores the pending item. The session is reset whatever the outcome.
func (h *Handler) commit(ctx context.Context, t turn) {
	st := h.state.State(t.userID)
	defer h.state.Reset(t.userID)

	if st.Stage != session.StageConfirmAdd || st.Pending == nil {
		h.send(ctx, t, msgNoData, nil)
		return
	}
	item, err := st.Pending.Item()
	if err != nil {
		h.fail(ctx, t, msgSaveFailed, err)
		return
	}
	description := wardrobe.SanitizeDescription(item.Description)
	if description == "" {
		h.send(ctx, t, msgEmptyDesc, nil)
		return
	}
	if err := h.wardrobe.AddItem(t.uid(), item.Category, description); err != nil {
		h.fail(ctx, t, msgSaveFailed, err)
		return
	}
	h.send(ctx, t, msgItemAdded, nil)
}

// fail reports err to the user behind prefix and journals it.
func (h *Handler) fail(ctx context.Context, t turn, prefix string, err error) {
	h.logger.Error("handling update", "user_id", t.userID, "error", err)
	h.record(t, storage.KindError, err.Error())
	h.send(ctx, t, prefix+err.Error(), nil)
}

func (h *Handler) send(ctx context.Context, t turn, text string, markup *telegram.InlineKeyboardMarkup) {
	if err := h.msg.SendMessage(ctx, t.chatID, text, markup); err != nil {
		h.logger.Error("send message failed", "chat_id", t.chatID, "error", err)
	}
}

func (h *Handler) record(t turn, kind, text string) {
	if h.journal == nil {
		return
	}
	err := h.journal.AppendEvent(storage.Event{
		UserID:   t.userID,
		Username: t.username,
		Kind:     kind,
		Text:     text,
	})
	if err != nil {
		h.logger.Warn("journal write failed", "user_id", t.userID, "kind", kind, "error", err)
	}
}

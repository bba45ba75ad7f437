package bot

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/stylebot/internal/assistant"
	"github.com/kalambet/stylebot/internal/reply"
	"github.com/kalambet/stylebot/internal/session"
	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/telegram"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

type sent struct {
	chatID int64
	text   string
	markup *telegram.InlineKeyboardMarkup
}

type sentDoc struct {
	chatID   int64
	filename string
	body     string
}

type mockMessenger struct {
	messages    []sent
	documents   []sentDoc
	answered    []string
	downloadErr error
	downloads   []string
}

func (m *mockMessenger) SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	m.messages = append(m.messages, sent{chatID: chatID, text: text, markup: markup})
	return nil
}

func (m *mockMessenger) AnswerCallbackQuery(ctx context.Context, id string) error {
	m.answered = append(m.answered, id)
	return nil
}

func (m *mockMessenger) SendDocument(ctx context.Context, chatID int64, filename string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.documents = append(m.documents, sentDoc{chatID: chatID, filename: filename, body: string(b)})
	return nil
}

func (m *mockMessenger) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	if m.downloadErr != nil {
		return "", m.downloadErr
	}
	path := filepath.Join(dir, fileID+"_file")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		return "", err
	}
	m.downloads = append(m.downloads, path)
	return path, nil
}

func (m *mockMessenger) last() sent {
	if len(m.messages) == 0 {
		return sent{}
	}
	return m.messages[len(m.messages)-1]
}

type mockAssistant struct {
	replies []reply.Raw
	inputs  []assistant.Input
}

func (m *mockAssistant) Ask(ctx context.Context, userID int64, in assistant.Input) reply.Raw {
	m.inputs = append(m.inputs, in)
	if len(m.replies) == 0 {
		return reply.Text("")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r
}

const (
	testUser  int64 = 42
	testAdmin int64 = 7
)

type fixture struct {
	h        *Handler
	msg      *mockMessenger
	ai       *mockAssistant
	wardrobe *wardrobe.Store
	events   *storage.Store
	state    *session.Context
}

func newFixture(t *testing.T, replies ...reply.Raw) *fixture {
	t.Helper()
	dir := t.TempDir()

	events, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	f := &fixture{
		msg:      &mockMessenger{},
		ai:       &mockAssistant{replies: replies},
		wardrobe: wardrobe.NewStore(filepath.Join(dir, "wardrobe.json")),
		events:   events,
		state:    session.New(),
	}
	f.h = NewHandler(Deps{
		Messenger:   f.msg,
		Assistant:   f.ai,
		Wardrobe:    f.wardrobe,
		Journal:     events,
		State:       f.state,
		AdminUserID: testAdmin,
		TempDir:     dir,
	})
	return f
}

func (f *fixture) text(userID int64, text string) {
	f.h.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: userID, Username: "anna"},
		Chat: telegram.Chat{ID: userID},
		Text: text,
	}})
}

func (f *fixture) photo(userID int64) {
	f.h.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: userID, Username: "anna"},
		Chat: telegram.Chat{ID: userID},
		Photo: []telegram.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 1280, Height: 1280},
		},
	}})
}

func (f *fixture) press(userID int64, data string) {
	f.h.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb-" + data,
		From:    telegram.User{ID: userID, Username: "anna"},
		Message: &telegram.Message{Chat: telegram.Chat{ID: userID}},
		Data:    data,
	}})
}

func (f *fixture) stage(userID int64) session.Stage {
	return f.state.State(userID).Stage
}

func keyboardData(m *telegram.InlineKeyboardMarkup) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, row := range m.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.CallbackData)
		}
	}
	return out
}

const shortsJSON = `{"category":"шорты","description":"джинсовые шорты"}`

func TestStart_ShowsHelp(t *testing.T) {
	f := newFixture(t)
	f.text(testUser, "/start")

	require.Len(t, f.msg.messages, 1)
	assert.Contains(t, f.msg.last().text, "/addwardrobe")
	assert.Equal(t, session.StageNone, f.stage(testUser))
	assert.Empty(t, f.ai.inputs)
}

func TestAddWardrobe_AwaitsPhoto(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.NewRecord("Жилет", "old"))

	f.text(testUser, "/addwardrobe")

	st := f.state.State(testUser)
	assert.Equal(t, session.StageAwaitingAddPhoto, st.Stage)
	assert.Nil(t, st.Pending)
	assert.Equal(t, msgSendPhoto, f.msg.last().text)
}

func TestCommand_WithBotSuffix(t *testing.T) {
	f := newFixture(t)
	f.text(testUser, "/addwardrobe@stylist_bot")
	assert.Equal(t, session.StageAwaitingAddPhoto, f.stage(testUser))
}

func TestUnknownCommand_GoesToAssistant(t *testing.T) {
	f := newFixture(t, reply.Text("не знаю такой команды"))
	f.text(testUser, "/outfit")

	require.Len(t, f.ai.inputs, 1)
	assert.Equal(t, assistant.TextInput("/outfit"), f.ai.inputs[0])
	assert.Equal(t, "не знаю такой команды", f.msg.last().text)
}

func TestPhoto_WithoutCommand(t *testing.T) {
	f := newFixture(t)
	f.photo(testUser)

	assert.Equal(t, msgNeedAddCommand, f.msg.last().text)
	assert.Empty(t, f.ai.inputs)
	assert.Empty(t, f.msg.downloads)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestPhoto_RecognisedAsksForConfirmation(t *testing.T) {
	f := newFixture(t, reply.Text("```json\n"+shortsJSON+"\n```"))
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)

	require.Len(t, f.msg.downloads, 1)
	assert.Contains(t, f.msg.downloads[0], "large")
	require.Len(t, f.ai.inputs, 1)
	assert.Equal(t, assistant.ImageInput(f.msg.downloads[0]), f.ai.inputs[0])

	st := f.state.State(testUser)
	assert.Equal(t, session.StageConfirmAdd, st.Stage)
	assert.Equal(t, reply.NewRecord("шорты", "джинсовые шорты"), st.Pending)

	last := f.msg.last()
	assert.Equal(t, "Категория: шорты\nОписание: джинсовые шорты", last.text)
	assert.Equal(t, []string{CallbackCommit, CallbackEdit}, keyboardData(last.markup))

	cached, ok := f.state.Photo(testUser)
	require.True(t, ok)
	assert.Equal(t, f.msg.downloads[0], cached)
}

func TestPhoto_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply reply.Raw
		want  string
	}{
		{"empty", reply.Text("  "), msgEmptyReply},
		{"malformed", reply.Text("Это рубашка"), "RAW: Это рубашка"},
		{"missing description", reply.Text(`{"category":"ЖИЛЕТ"}`), msgRecognizeFailed},
		{"gateway failure", reply.Failure(assistant.FailurePrefix + "timeout"), assistant.FailurePrefix + "timeout"},
		{"text that looks like a failure", reply.Text(assistant.FailurePrefix + "timeout"), "RAW: " + assistant.FailurePrefix + "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.reply)
			f.text(testUser, "/addwardrobe")
			f.photo(testUser)

			assert.Contains(t, f.msg.last().text, tt.want)
			assert.Nil(t, f.msg.last().markup)
			assert.Equal(t, session.StageAwaitingAddPhoto, f.stage(testUser))
		})
	}
}

func TestPhoto_DownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.msg.downloadErr = errors.New("network down")
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)

	assert.Equal(t, msgDownloadFailed+"network down", f.msg.last().text)
	assert.Empty(t, f.ai.inputs)
	assert.Equal(t, session.StageAwaitingAddPhoto, f.stage(testUser))
}

func TestCommit_AddsItemAndResets(t *testing.T) {
	f := newFixture(t, reply.Text(shortsJSON))
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)
	f.press(testUser, CallbackCommit)

	assert.Equal(t, msgItemAdded, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
	assert.Equal(t, map[string][]string{"Шорты": {"джинсовые шорты"}}, f.wardrobe.UserItems("42"))
	assert.Equal(t, []string{"cb-" + CallbackCommit}, f.msg.answered)
}

func TestCommit_WithoutPending(t *testing.T) {
	f := newFixture(t)
	f.press(testUser, CallbackCommit)

	assert.Equal(t, msgNoData, f.msg.last().text)
	assert.Empty(t, f.wardrobe.UserItems("42"))
	assert.Len(t, f.msg.answered, 1)
}

func TestCommit_InvalidRecordLeavesWardrobeUntouched(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.Record{reply.KeyCategory: "ЖИЛЕТ"})
	f.press(testUser, CallbackCommit)

	assert.True(t, strings.HasPrefix(f.msg.last().text, msgSaveFailed))
	assert.Equal(t, session.StageNone, f.stage(testUser))
	assert.Empty(t, f.wardrobe.UserItems("42"))
}

func TestCommit_SanitisesDescription(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.NewRecord("ЖИЛЕТ", " вязаный\nсерый\x00 "))
	f.press(testUser, CallbackCommit)

	assert.Equal(t, map[string][]string{"Жилет": {"вязаный серый"}}, f.wardrobe.UserItems("42"))
}

func TestCommit_EmptyDescription(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.NewRecord("ЖИЛЕТ", " \n "))
	f.press(testUser, CallbackCommit)

	assert.Equal(t, msgEmptyDesc, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
	assert.Empty(t, f.wardrobe.UserItems("42"))
}

func TestEdit_OffersChoices(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.NewRecord("ЖИЛЕТ", "вязаный"))
	f.press(testUser, CallbackEdit)

	assert.Equal(t, msgChooseAction, f.msg.last().text)
	assert.Equal(t, []string{CallbackManual, CallbackRetry}, keyboardData(f.msg.last().markup))
	assert.Equal(t, session.StageConfirmAdd, f.stage(testUser))
}

func TestEdit_WithoutPending(t *testing.T) {
	f := newFixture(t)
	f.press(testUser, CallbackEdit)
	assert.Equal(t, msgNoData, f.msg.last().text)
}

func TestManualEdit_ReplacesDescriptionOnly(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageConfirmAdd, reply.NewRecord("ЖИЛЕТ", "вязаный"))

	f.press(testUser, CallbackManual)
	assert.Equal(t, msgEnterText, f.msg.last().text)
	assert.Equal(t, session.StageAwaitingManualEdit, f.stage(testUser))

	f.text(testUser, "тёплый шерстяной жилет")

	st := f.state.State(testUser)
	assert.Equal(t, session.StageConfirmAdd, st.Stage)
	assert.Equal(t, reply.NewRecord("ЖИЛЕТ", "тёплый шерстяной жилет"), st.Pending)
	assert.Contains(t, f.msg.last().text, "тёплый шерстяной жилет")
	assert.Equal(t, []string{CallbackCommit, CallbackEdit}, keyboardData(f.msg.last().markup))
	assert.Empty(t, f.ai.inputs, "manual text must not reach the assistant")

	f.press(testUser, CallbackCommit)
	assert.Equal(t, map[string][]string{"Жилет": {"тёплый шерстяной жилет"}}, f.wardrobe.UserItems("42"))
}

func TestManualButton_WithoutPendingResets(t *testing.T) {
	f := newFixture(t)
	f.state.SetStage(testUser, session.StageAwaitingAddPhoto)
	f.press(testUser, CallbackManual)

	assert.Equal(t, msgNoData, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestManualEdit_NoData(t *testing.T) {
	f := newFixture(t)
	f.state.SetStage(testUser, session.StageAwaitingManualEdit)
	f.text(testUser, "новое описание")

	assert.Equal(t, msgNoData, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestManualEdit_CategoryLost(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageAwaitingManualEdit, reply.Record{reply.KeyDescription: "x"})
	f.text(testUser, "новое описание")

	assert.Equal(t, msgCategoryLost, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestManualEdit_CommandsStillWin(t *testing.T) {
	f := newFixture(t)
	f.state.SetPending(testUser, session.StageAwaitingManualEdit, reply.NewRecord("ЖИЛЕТ", "x"))
	f.text(testUser, "/cancel")

	assert.Equal(t, msgCancelled, f.msg.last().text)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestRetry_UsesCachedPhoto(t *testing.T) {
	f := newFixture(t,
		reply.Text(`{"category":"ЮБКА","description":"мини"}`),
		reply.Text(`{"category":"ПЛАТЬЕ","description":"миди"}`),
	)
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)
	f.press(testUser, CallbackRetry)

	require.Len(t, f.ai.inputs, 2)
	assert.Equal(t, f.ai.inputs[0], f.ai.inputs[1])
	assert.Len(t, f.msg.downloads, 1, "retry must not download again")

	st := f.state.State(testUser)
	assert.Equal(t, session.StageConfirmAdd, st.Stage)
	assert.Equal(t, reply.NewRecord("ПЛАТЬЕ", "миди"), st.Pending)
}

func TestRetry_FailureKeepsState(t *testing.T) {
	f := newFixture(t,
		reply.Text(`{"category":"ЮБКА","description":"мини"}`),
		reply.Text("не JSON"),
	)
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)
	f.press(testUser, CallbackRetry)

	assert.Contains(t, f.msg.last().text, "RAW: не JSON")
	st := f.state.State(testUser)
	assert.Equal(t, session.StageConfirmAdd, st.Stage)
	assert.Equal(t, reply.NewRecord("ЮБКА", "мини"), st.Pending)
}

func TestRetry_NoCachedPhoto(t *testing.T) {
	f := newFixture(t)
	f.press(testUser, CallbackRetry)

	assert.Equal(t, msgNoCachedPhoto, f.msg.last().text)
	assert.Empty(t, f.ai.inputs)
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestUnknownCallback_Ignored(t *testing.T) {
	f := newFixture(t)
	f.press(testUser, "bogus")

	assert.Empty(t, f.msg.messages)
	assert.Equal(t, []string{"cb-bogus"}, f.msg.answered)
}

func TestGetLogs_Admin(t *testing.T) {
	f := newFixture(t)
	f.text(testUser, "привет?")
	f.text(testAdmin, "/get_logs")

	require.Len(t, f.msg.documents, 1)
	doc := f.msg.documents[0]
	assert.Equal(t, testAdmin, doc.chatID)
	assert.Equal(t, logsFilename, doc.filename)

	rows, err := csv.NewReader(strings.NewReader(doc.body)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"timestamp", "user_id", "username", "event_type", "text"}, rows[0])
	assert.Contains(t, doc.body, "привет?")
}

func TestGetLogs_Refused(t *testing.T) {
	f := newFixture(t)
	f.text(testUser, "/get_logs")

	assert.Equal(t, msgNoAccess, f.msg.last().text)
	assert.Empty(t, f.msg.documents)
}

func TestGetLogs_NoAdminConfigured(t *testing.T) {
	f := newFixture(t)
	f.h.adminID = 0
	f.h.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: 0},
		Chat: telegram.Chat{ID: 0},
		Text: "/get_logs",
	}})

	assert.Equal(t, msgNoAccess, f.msg.last().text)
	assert.Empty(t, f.msg.documents)
}

func TestWardrobeCommand_ListsWithoutAssistant(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.wardrobe.AddItem("42", "ОБУВЬ", "белые кеды"))
	f.text(testUser, "/wardrobe")

	assert.Contains(t, f.msg.last().text, "белые кеды")
	assert.Empty(t, f.ai.inputs)
}

func TestVoice_TranscribedAndCleanedUp(t *testing.T) {
	f := newFixture(t, reply.Text("Надень синее платье."))
	f.h.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		From:  &telegram.User{ID: testUser},
		Chat:  telegram.Chat{ID: testUser},
		Voice: &telegram.Voice{FileID: "voice1", Duration: 3},
	}})

	require.Len(t, f.ai.inputs, 1)
	assert.Equal(t, assistant.InputAudio, f.ai.inputs[0].Kind)
	assert.Equal(t, "Надень синее платье.", f.msg.last().text)

	_, err := os.Stat(f.msg.downloads[0])
	assert.True(t, errors.Is(err, os.ErrNotExist), "voice file should be removed")
	assert.Equal(t, session.StageNone, f.stage(testUser))
}

func TestText_StructuredReplyIsFormatted(t *testing.T) {
	f := newFixture(t, reply.Structured(map[string]any{"категория": "КОФТА", "описание": "худи"}))
	f.text(testUser, "что это?")

	assert.Equal(t, "Категория: КОФТА\nОписание: худи", f.msg.last().text)
}

func TestUnsupportedMessage(t *testing.T) {
	f := newFixture(t)
	f.h.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		From: &telegram.User{ID: testUser},
		Chat: telegram.Chat{ID: testUser},
	}})

	assert.Equal(t, msgUnsupported, f.msg.last().text)
	assert.Empty(t, f.ai.inputs)
}

func TestInboundEventsAreJournaled(t *testing.T) {
	f := newFixture(t, reply.Text(shortsJSON))
	f.text(testUser, "/addwardrobe")
	f.photo(testUser)
	f.press(testUser, CallbackCommit)

	uid := testUser
	events, err := f.events.ListEvents(storage.EventFilter{UserID: &uid})
	require.NoError(t, err)

	var texts []string
	for _, e := range events {
		texts = append(texts, e.Kind+" "+e.Text)
		assert.Equal(t, "anna", e.Username)
	}
	assert.ElementsMatch(t, []string{
		storage.KindUserMessage + " /addwardrobe",
		storage.KindUserMessage + " [photo]",
		storage.KindCallback + " [callback] " + CallbackCommit,
	}, texts)
}

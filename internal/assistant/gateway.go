// Package assistant turns a user's text, photo or voice message into a single
// reply from the chat model.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kalambet/stylebot/internal/gpt"
	"github.com/kalambet/stylebot/internal/reply"
	"github.com/kalambet/stylebot/internal/session"
	"github.com/kalambet/stylebot/internal/storage"
	"github.com/kalambet/stylebot/internal/wardrobe"
)

// Username under which replies are journaled.
const journalUsername = "assistant"

// FailurePrefix starts the message of every Failure reply produced by Ask.
const FailurePrefix = "❌ Ошибка при обращении к GPT: "

var errEmptyTranscript = errors.New("transcription is empty")

// Chatter is the model backend.
type Chatter interface {
	Chat(ctx context.Context, req gpt.Request) (gpt.Completion, error)
	Transcribe(ctx context.Context, path string) (string, error)
}

// Wardrobe is what the tool calls need from the wardrobe store.
type Wardrobe interface {
	UserItems(userID string) map[string][]string
	BulkAdd(userID string, items []wardrobe.BulkItem) (wardrobe.BulkResult, error)
}

// Threads stores per-user conversation history.
type Threads interface {
	Thread(userID int64) session.Thread
	AppendTurns(userID int64, limit int, turns ...session.Turn)
}

// Journal records audit events.
type Journal interface {
	AppendEvent(e storage.Event) error
}

// InputKind tells Ask how to treat an Input.
type InputKind int

const (
	InputText InputKind = iota + 1
	InputImage
	InputAudio
)

// Input is the content of a single turn: text, or a path to a local image or
// audio file.
type Input struct {
	Kind InputKind
	Text string
	Path string
}

func TextInput(text string) Input  { return Input{Kind: InputText, Text: text} }
func ImageInput(path string) Input { return Input{Kind: InputImage, Path: path} }
func AudioInput(path string) Input { return Input{Kind: InputAudio, Path: path} }

// Options tunes a Gateway.
type Options struct {
	SystemPrompt string
	MaxHistory   int
}

// Gateway sends user turns to the model.
type Gateway struct {
	chat     Chatter
	wardrobe Wardrobe
	threads  Threads
	journal  Journal // optional
	opts     Options
}

// NewGateway creates a Gateway. journal may be nil.
func NewGateway(chat Chatter, w Wardrobe, threads Threads, journal Journal, opts Options) *Gateway {
	return &Gateway{chat: chat, wardrobe: w, threads: threads, journal: journal, opts: opts}
}

// Ask runs one turn for userID. Photos produce the raw classifier text for the
// caller to normalise; text and voice produce the conversational answer. Any
// backend failure comes back as a reply.Failure whose message starts with
// FailurePrefix.
func (g *Gateway) Ask(ctx context.Context, userID int64, in Input) reply.Raw {
	var (
		out reply.Raw
		err error
	)
	switch in.Kind {
	case InputImage:
		out, err = g.classify(ctx, in.Path)
	case InputAudio:
		out, err = g.voice(ctx, userID, in.Path)
	case InputText:
		out, err = g.converse(ctx, userID, in.Text)
	default:
		err = fmt.Errorf("unsupported input kind %d", in.Kind)
	}

	if err != nil {
		slog.Error("assistant request failed", "user_id", userID, "input", in.Kind, "error", err)
		g.record(userID, storage.KindError, err.Error())
		return reply.Failure(FailurePrefix + err.Error())
	}

	g.record(userID, storage.KindAssistantReply, rawText(out))
	return out
}

func (g *Gateway) classify(ctx context.Context, path string) (reply.Raw, error) {
	imageURL, err := gpt.ImageDataURL(path)
	if err != nil {
		return reply.Raw{}, err
	}
	resp, err := g.chat.Chat(ctx, gpt.Request{
		Messages: buildClassifyMessages(g.opts.SystemPrompt, imageURL),
	})
	if err != nil {
		return reply.Raw{}, err
	}
	return reply.Text(resp.Content), nil
}

func (g *Gateway) voice(ctx context.Context, userID int64, path string) (reply.Raw, error) {
	text, err := g.chat.Transcribe(ctx, path)
	if err != nil {
		return reply.Raw{}, err
	}
	if text == "" {
		return reply.Raw{}, errEmptyTranscript
	}
	slog.Debug("voice transcribed", "user_id", userID, "chars", len(text))
	return g.converse(ctx, userID, text)
}

func (g *Gateway) converse(ctx context.Context, userID int64, text string) (reply.Raw, error) {
	thread := g.threads.Thread(userID)
	resp, err := g.chat.Chat(ctx, gpt.Request{
		Messages: buildChatMessages(g.opts.SystemPrompt, thread.Turns, text),
		Tools:    wardrobeTools(),
	})
	if err != nil {
		return reply.Raw{}, err
	}

	answer, handled, err := g.runTools(userID, resp)
	if err != nil {
		return reply.Raw{}, err
	}
	if !handled {
		answer = resp.Content
	}

	g.threads.AppendTurns(userID, g.opts.MaxHistory,
		session.Turn{Role: session.RoleUser, Content: text},
		session.Turn{Role: session.RoleAssistant, Content: answer},
	)
	return reply.Text(answer), nil
}

// runTools answers the first recognised tool call directly, without a second
// model round trip.
func (g *Gateway) runTools(userID int64, resp gpt.Completion) (string, bool, error) {
	if resp.FinishReason != gpt.FinishToolCalls && len(resp.ToolCalls) == 0 {
		return "", false, nil
	}
	uid := strconv.FormatInt(userID, 10)

	for _, call := range resp.ToolCalls {
		switch call.Name {
		case toolLoadWardrobe:
			return wardrobe.FormatListing(g.wardrobe.UserItems(uid)), true, nil
		case toolAddItems:
			items, err := parseAddItemsArgs(call.Arguments)
			if err != nil {
				return "", false, err
			}
			res, err := g.wardrobe.BulkAdd(uid, items)
			if err != nil {
				return "", false, err
			}
			return "✅ " + res.Message, true, nil
		default:
			slog.Warn("ignoring unknown tool call", "user_id", userID, "tool", call.Name)
		}
	}
	return "", false, nil
}

func (g *Gateway) record(userID int64, kind, text string) {
	if g.journal == nil {
		return
	}
	err := g.journal.AppendEvent(storage.Event{
		UserID:   userID,
		Username: journalUsername,
		Kind:     kind,
		Text:     text,
	})
	if err != nil {
		slog.Warn("journal write failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func rawText(r reply.Raw) string {
	if r.Kind() == reply.KindStructured {
		b, err := json.Marshal(r.Fields())
		if err != nil {
			return fmt.Sprintf("%v", r.Fields())
		}
		return string(b)
	}
	return r.String()
}

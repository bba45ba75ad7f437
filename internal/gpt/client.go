// Package gpt wraps the OpenAI chat completion and transcription endpoints.
package gpt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishToolCalls is the finish reason reported when the model requests tools.
const FinishToolCalls = "tool_calls"

// ErrNoChoices is returned when the backend answers without any choice.
var ErrNoChoices = errors.New("completion has no choices")

// Message is one chat turn. ImageURL, when set on a user message, is sent as
// an image part next to Content.
type Message struct {
	Role     string
	Content  string
	ImageURL string
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single chat completion call.
type Request struct {
	Messages []Message
	Tools    []Tool
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Completion is the first choice of a chat completion.
type Completion struct {
	Content      string
	FinishReason string
	ToolCalls    []ToolCall
}

// Options configures a Client.
type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Temperature     float64
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client talks to an OpenAI-compatible API.
type Client struct {
	client          openai.Client
	model           string
	transcribeModel string
	temperature     float64
}

// New creates a Client. Requests are never retried; a failed call is reported
// to the caller as is.
func New(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	transcribe := opts.TranscribeModel
	if transcribe == "" {
		transcribe = string(openai.AudioModelWhisper1)
	}

	return &Client{
		client:          openai.NewClient(reqOpts...),
		model:           opts.Model,
		transcribeModel: transcribe,
		temperature:     opts.Temperature,
	}
}

// Model returns the chat model name.
func (c *Client) Model() string {
	return c.model
}

// Chat sends req and returns the first choice.
func (c *Client) Chat(ctx context.Context, req Request) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
		Messages:    buildMessages(req.Messages),
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoChoices
	}

	choice := resp.Choices[0]
	out := Completion{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Transcribe converts the audio file at path to text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(c.transcribeModel),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func buildMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		case RoleAssistant:
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			out = append(out, userMessage(m))
		}
	}
	return out
}

func userMessage(m Message) openai.ChatCompletionMessageParamUnion {
	if m.ImageURL == "" {
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			},
		}
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					{OfText: &openai.ChatCompletionContentPartTextParam{
						Text: m.Content,
					}},
					{OfImageURL: &openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
							URL:    m.ImageURL,
							Detail: "auto",
						},
					}},
				},
			},
		},
	}
}

// ImageDataURL reads the image at path and returns it as a base64 data URL.
func ImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", path)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

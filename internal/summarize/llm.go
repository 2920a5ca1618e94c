package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"vodscribe/internal/models"
)

// ErrNotConfigured is returned when a client is used without the settings it needs.
var ErrNotConfigured = errors.New("summarizer not configured")

// DefaultSystemPrompt asks for a knowledge-base style Markdown digest.
const DefaultSystemPrompt = "You are a knowledge-base editor. Ignore filler such as greetings and requests to subscribe. " +
	"Extract the core argument, key evidence and figures of the video. Answer in Markdown."

// maxChunkRunes bounds one request; longer transcripts are summarized in parts.
const maxChunkRunes = 15000

// LLMConfig configures an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	Enabled      bool
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// LLM summarizes transcripts through a chat completion API.
type LLM struct {
	cfg      LLMConfig
	client   *openai.Client
	disabled string
}

// NewLLM builds the summarizer. A disabled or keyless configuration yields a summarizer
// that always reports the summary as unavailable.
func NewLLM(cfg LLMConfig) *LLM {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	l := &LLM{cfg: cfg}
	switch {
	case !cfg.Enabled:
		l.disabled = "LLM disabled"
	case strings.TrimSpace(cfg.APIKey) == "":
		l.disabled = "no API key configured, keeping the raw transcript"
	default:
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		l.client = openai.NewClientWithConfig(clientCfg)
	}
	return l
}

// Summarize returns the document body for a transcript.
func (l *LLM) Summarize(ctx context.Context, transcript string, item models.Item) (models.Summary, error) {
	if l.client == nil {
		return models.Summary{Kind: models.SummaryUnavailable, Reason: l.disabled}, nil
	}
	if strings.TrimSpace(transcript) == "" {
		return models.Summary{Kind: models.SummaryUnavailable, Reason: "empty transcript"}, nil
	}

	header := promptHeader(item)
	chunks := splitRunes(transcript, maxChunkRunes)
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out, err := l.complete(ctx, header+chunk)
		if err != nil {
			return models.Summary{}, err
		}
		if out != "" {
			parts = append(parts, out)
		}
	}
	if len(parts) == 0 {
		return models.Summary{Kind: models.SummaryUnavailable, Reason: "model returned no content"}, nil
	}
	return models.Summary{Kind: models.SummaryReady, Text: strings.Join(parts, "\n\n---\n\n")}, nil
}

func (l *LLM) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: l.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func promptHeader(item models.Item) string {
	var b strings.Builder
	b.WriteString("# Video\n")
	fmt.Fprintf(&b, "Title: %s\n", orUnknown(item.Title))
	fmt.Fprintf(&b, "ID: %s\n", orUnknown(item.ID))
	fmt.Fprintf(&b, "Uploaded: %s\n", orUnknown(item.UploadDay()))
	if item.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", item.Duration.Round(time.Second))
	}
	b.WriteString("\n# Transcript\n")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// splitRunes cuts s into pieces of at most n runes, preferring line breaks.
func splitRunes(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

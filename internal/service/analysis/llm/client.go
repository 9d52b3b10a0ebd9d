// Package llm is an analysis backend that runs each pass as a JSON-mode chat completion.
// Audio clips are transcribed first and judged as text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/schema"
	"call-assist-service/internal/service/analysis"
)

const (
	tonePrompt = `You judge the emotional tone of a short customer-service exchange.
Reply with JSON {"score": number from -1 (very negative) to 1 (very positive), "sentiment": short phrase}.`

	coachingPrompt = `You coach a call-center agent during a live call. Given the transcript so far,
recent sentiment and the current tips, return the full updated tip list: keep tips that still apply,
drop stale ones, add at most two new ones. Reply with JSON {"coaching": [string]}.`

	solutionsPrompt = `You help a call-center agent resolve the customer's issue. Given the transcript so far,
recent sentiment and the current candidate solutions, return the full updated solution list.
Reply with JSON {"solutions": [string]}.`

	notesPrompt = `You take notes on a customer-service call. Given the transcript and the notes already
taken, return only NEW facts: up to 2 "information", at most 1 "problems", 1 "requests", 1 "concerns".
Never restate an existing note. Reply with JSON {"information": [], "problems": [], "requests": [], "concerns": []}.`
)

// Config holds model settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements analysis.Analyzer on the OpenAI API.
type Client struct {
	client    *openai.Client
	model     string
	validator *schema.Validator
	logger    zerolog.Logger
}

// New creates an LLM analysis client.
func New(cfg Config, validator *schema.Validator) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		validator: validator,
		logger:    logging.WithComponent("analysis-llm"),
	}
}

// Tone judges the window. A clip is transcribed and its text used instead.
func (c *Client) Tone(ctx context.Context, req analysis.ToneRequest) (analysis.ToneResult, error) {
	text := req.Text
	if len(req.Clip) > 0 {
		resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: "clip.wav",
			Reader:   bytes.NewReader(req.Clip),
		})
		if err != nil {
			return analysis.ToneResult{}, upstream(err)
		}
		if t := strings.TrimSpace(resp.Text); t != "" {
			text = t
		}
	}

	content, err := c.complete(ctx, tonePrompt, text)
	if err != nil {
		return analysis.ToneResult{}, err
	}
	if failures := c.validator.Validate(schema.KindTone, []byte(content)); len(failures) > 0 {
		c.logger.Warn().Strs("failures", failures).Msg("Malformed tone completion, using neutral")
		return analysis.Neutral, nil
	}
	var out analysis.ToneResult
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return analysis.Neutral, nil
	}
	out.Score = analysis.ClampScore(out.Score)
	return out, nil
}

// Coaching returns the replacement coaching list, or nil when the reply carried none.
func (c *Client) Coaching(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	lists, err := c.contextPass(ctx, coachingPrompt, req, "coaching")
	if err != nil {
		return nil, err
	}
	return lists["coaching"], nil
}

// Solutions returns the replacement solutions list, or nil when the reply carried none.
func (c *Client) Solutions(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	lists, err := c.contextPass(ctx, solutionsPrompt, req, "solutions")
	if err != nil {
		return nil, err
	}
	return lists["solutions"], nil
}

// Notes returns candidate notes.
func (c *Client) Notes(ctx context.Context, req analysis.ContextRequest) (models.Notes, error) {
	lists, err := c.contextPass(ctx, notesPrompt, req, "information", "problems", "requests", "concerns")
	if err != nil {
		return models.Notes{}, err
	}
	return models.Notes{
		Information: lists["information"],
		Problems:    lists["problems"],
		Requests:    lists["requests"],
		Concerns:    lists["concerns"],
	}, nil
}

// contextPass sends the request as the user message and decodes the named list fields
// of the reply. Malformed fields are dropped one by one.
func (c *Client) contextPass(ctx context.Context, prompt string, req analysis.ContextRequest, fields ...string) (map[string][]string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx, prompt, string(b))
	if err != nil {
		return nil, err
	}
	lists, errMsg, failures := c.validator.ContextLists([]byte(content), fields...)
	if errMsg != "" {
		return nil, &analysis.UpstreamError{Message: errMsg}
	}
	if len(failures) > 0 {
		c.logger.Warn().Strs("failures", failures).Msg("Malformed completion, keeping valid fields")
	}
	return lists, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", upstream(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", analysis.ErrMalformed)
	}
	return resp.Choices[0].Message.Content, nil
}

// upstream converts API errors so status-based classification works.
func upstream(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &analysis.UpstreamError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	return err
}

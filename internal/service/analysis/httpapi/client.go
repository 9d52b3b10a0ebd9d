// Package httpapi is an analysis backend speaking JSON (and multipart for audio clips)
// to the tone, coaching, solutions and notes endpoints.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/schema"
	"call-assist-service/internal/service/analysis"
)

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Config holds endpoint paths relative to BaseURL.
type Config struct {
	BaseURL       string
	TonePath      string
	CoachingPath  string
	SolutionsPath string
	NotesPath     string
	Timeout       time.Duration
}

// DefaultConfig returns the standard endpoint layout under baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		TonePath:      "/tone",
		CoachingPath:  "/coaching",
		SolutionsPath: "/solutions",
		NotesPath:     "/notes",
		Timeout:       60 * time.Second,
	}
}

// Client implements analysis.Analyzer over HTTP.
type Client struct {
	cfg       Config
	c         *http.Client
	validator *schema.Validator
	logger    zerolog.Logger
}

// New creates an HTTP analysis client.
func New(cfg Config, validator *schema.Validator) *Client {
	return &Client{
		cfg:       cfg,
		c:         &http.Client{Timeout: cfg.Timeout},
		validator: validator,
		logger:    logging.WithComponent("analysis-http"),
	}
}

type toneReq struct {
	Text string `json:"text"`
}

type toneResp struct {
	Score     *float64 `json:"score"`
	Sentiment string   `json:"sentiment"`
	Error     string   `json:"error"`
}

// List fields of the shared coaching, solutions and notes response shape.
const (
	fieldInformation = "information"
	fieldProblems    = "problems"
	fieldRequests    = "requests"
	fieldConcerns    = "concerns"
	fieldSolutions   = "solutions"
	fieldCoaching    = "coaching"
)

// Tone posts the window text as JSON, or the clip as a multipart WAV upload.
// A malformed response yields analysis.Neutral.
func (h *Client) Tone(ctx context.Context, req analysis.ToneRequest) (analysis.ToneResult, error) {
	var (
		body        io.Reader
		contentType string
	)
	if len(req.Clip) > 0 {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		fw, err := w.CreateFormFile("audio", "clip.wav")
		if err != nil {
			return analysis.ToneResult{}, err
		}
		if _, err = fw.Write(req.Clip); err != nil {
			return analysis.ToneResult{}, err
		}
		if err = w.Close(); err != nil {
			return analysis.ToneResult{}, err
		}
		body, contentType = &b, w.FormDataContentType()
	} else {
		b, _ := json.Marshal(toneReq{Text: req.Text})
		body, contentType = bytes.NewReader(b), "application/json"
	}

	data, err := h.post(ctx, h.cfg.TonePath, contentType, body)
	if err != nil {
		return analysis.ToneResult{}, err
	}

	var out toneResp
	if err := json.Unmarshal(data, &out); err == nil && out.Error != "" {
		return analysis.ToneResult{}, &analysis.UpstreamError{Message: out.Error}
	}
	if failures := h.validator.Validate(schema.KindTone, data); len(failures) > 0 {
		h.logger.Warn().Strs("failures", failures).Msg("Malformed tone response, using neutral")
		return analysis.Neutral, nil
	}
	if out.Score == nil {
		return analysis.Neutral, nil
	}
	return analysis.ToneResult{Score: analysis.ClampScore(*out.Score), Sentiment: out.Sentiment}, nil
}

// Coaching returns the replacement coaching list, or nil when the response carried none.
func (h *Client) Coaching(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	lists, err := h.context(ctx, h.cfg.CoachingPath, req, fieldCoaching)
	if err != nil {
		return nil, err
	}
	return lists[fieldCoaching], nil
}

// Solutions returns the replacement solutions list, or nil when the response carried none.
func (h *Client) Solutions(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	lists, err := h.context(ctx, h.cfg.SolutionsPath, req, fieldSolutions)
	if err != nil {
		return nil, err
	}
	return lists[fieldSolutions], nil
}

// Notes returns candidate notes; the caller deduplicates them.
func (h *Client) Notes(ctx context.Context, req analysis.ContextRequest) (models.Notes, error) {
	lists, err := h.context(ctx, h.cfg.NotesPath, req, fieldInformation, fieldProblems, fieldRequests, fieldConcerns)
	if err != nil {
		return models.Notes{}, err
	}
	return models.Notes{
		Information: lists[fieldInformation],
		Problems:    lists[fieldProblems],
		Requests:    lists[fieldRequests],
		Concerns:    lists[fieldConcerns],
	}, nil
}

// context posts the request and decodes only the fields the pass consumes. A malformed
// field is dropped on its own and logged; it is not an error.
func (h *Client) context(ctx context.Context, path string, req analysis.ContextRequest, fields ...string) (map[string][]string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data, err := h.post(ctx, path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	lists, errMsg, failures := h.validator.ContextLists(data, fields...)
	if errMsg != "" {
		return nil, &analysis.UpstreamError{Message: errMsg}
	}
	if len(failures) > 0 {
		h.logger.Warn().Str("path", path).Strs("failures", failures).Msg("Malformed analysis response, keeping valid fields")
	}
	return lists, nil
}

// post sends one request and returns the body of a 2xx response.
func (h *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &analysis.UpstreamError{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

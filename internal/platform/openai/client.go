package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/ctxutil"
	"github.com/claimsage/claimsage-backend/internal/platform/httpx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/utils"
)

// Client is the OpenAI API surface the pipeline needs: embeddings for
// ingestion/retrieval, plain text generation for per-chunk analysis and
// summarization, and streamed text for the chat path.
type Client interface {
	// Embed returns one vector per input, order-preserving.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)

	// EmbedModel is the model tag written alongside every stored vector.
	EmbedModel() string

	GenerateText(ctx context.Context, system string, user string) (string, error)

	// StreamText forwards output_text deltas as they arrive and returns the
	// concatenated text. Cancelling ctx stops the upstream stream.
	StreamText(ctx context.Context, system string, user string, onDelta func(delta string)) (string, error)
}

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbedModel     string
	Timeout        time.Duration
	StreamTimeout  time.Duration
	MaxRetries     int
	RequestsPerSec float64
	Burst          int
}

func LoadConfig(log *logger.Logger) (Config, error) {
	apiKey := strings.TrimSpace(utils.GetEnv("OPENAI_API_KEY", "", log))
	if apiKey == "" {
		return Config{}, fmt.Errorf("missing OPENAI_API_KEY")
	}
	cfg := Config{
		BaseURL:        strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", log), "/"),
		APIKey:         apiKey,
		Model:          utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		EmbedModel:     utils.GetEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small", log),
		Timeout:        time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 120, log)) * time.Second,
		StreamTimeout:  time.Duration(utils.GetEnvAsInt("OPENAI_STREAM_TIMEOUT_SECONDS", 300, log)) * time.Second,
		MaxRetries:     utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, log),
		RequestsPerSec: utils.GetEnvAsFloat("OPENAI_REQUESTS_PER_SECOND", 5, log),
		Burst:          utils.GetEnvAsInt("OPENAI_BURST", 10, log),
	}
	return cfg, nil
}

type client struct {
	log          *logger.Logger
	cfg          Config
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
}

// NewClient builds the client with an explicit rate limiter; callers that share
// a provider quota share one limiter instance rather than a global counter.
func NewClient(log *logger.Logger, cfg Config, limiter *rate.Limiter) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 300 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if limiter == nil {
		rps := cfg.RequestsPerSec
		if rps <= 0 {
			rps = 5
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 10
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &client{
		log:          log.With("service", "OpenAIClient"),
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		streamClient: &http.Client{Timeout: cfg.StreamTimeout},
		limiter:      limiter,
	}, nil
}

func (c *client) EmbedModel() string { return c.cfg.EmbedModel }

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// do runs one logical call with the retry policy: rate limits and transient
// failures back off (doubling from 1s, Retry-After honored, jittered) up to
// MaxRetries, then the classified error surfaces to the caller.
func (c *client) do(ctx context.Context, kind apperr.Kind, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return classify(kind, nil, ctx.Err())
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return classify(kind, nil, err)
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return apperr.New(kind, fmt.Errorf("openai decode error: %w", uErr))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return classify(kind, resp, err)
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return classify(kind, nil, ctx.Err())
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return apperr.New(kind, errors.New("unreachable retry loop"))
}

// classify maps transport/provider failures onto the app error taxonomy.
func classify(kind apperr.Kind, resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := httpx.StatusCodeOf(err)
	if status == 0 && resp != nil {
		status = resp.StatusCode
	}
	if httpx.IsRateLimitStatus(status) {
		return apperr.WithStatus(apperr.KindRateLimit, status, err)
	}
	return apperr.WithStatus(kind, status, err)
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	req := embeddingsRequest{
		Model: c.cfg.EmbedModel,
		Input: clean,
	}

	var resp embeddingsResponse
	if err := c.do(ctx, apperr.KindEmbeddingService, "POST", "/v1/embeddings", req, &resp); err != nil {
		return nil, err
	}

	// Restore response order by index; the provider may not echo input order.
	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}

	for i := range out {
		if len(out[i]) == 0 {
			return nil, apperr.Newf(apperr.KindEmbeddingService,
				"embeddings response missing index %d (requested=%d returned=%d model=%s)",
				i, len(clean), len(resp.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Stream bool `json:"stream,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func buildResponsesRequest(model, system, user string, stream bool) responsesRequest {
	req := responsesRequest{Model: model, Stream: stream}
	req.Input = []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}{
		{Role: "system", Content: strings.TrimSpace(system)},
		{Role: "user", Content: user},
	}
	return req
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := buildResponsesRequest(c.cfg.Model, system, user, false)

	var resp responsesResponse
	if err := c.do(ctx, apperr.KindCompletionService, "POST", "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", apperr.Newf(apperr.KindCompletionService, "model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", apperr.Newf(apperr.KindCompletionService, "no output_text found in response")
	}
	return text, nil
}

func (c *client) StreamText(ctx context.Context, system string, user string, onDelta func(delta string)) (string, error) {
	reqBody := buildResponsesRequest(c.cfg.Model, system, user, true)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", classify(apperr.KindCompletionService, nil, err)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", c.cfg.BaseURL+"/v1/responses", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", classify(apperr.KindCompletionService, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return "", classify(apperr.KindCompletionService, resp,
			&openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)})
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = streamSSE(resp.Body, func(event string, data string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == "[DONE]" {
			return nil
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil
		}

		evt := strings.TrimSpace(event)
		if t, ok := obj["type"].(string); ok && strings.TrimSpace(t) != "" {
			evt = strings.TrimSpace(t)
		}

		if r, ok := obj["refusal"].(string); ok && strings.TrimSpace(r) != "" {
			return apperr.Newf(apperr.KindCompletionService, "model refused: %s", r)
		}
		if eAny, ok := obj["error"]; ok && eAny != nil {
			b, _ := json.Marshal(eAny)
			return apperr.Newf(apperr.KindCompletionService, "stream error: %s", string(b))
		}

		if d, ok := obj["delta"].(string); ok {
			if d == "" {
				return nil
			}
			if strings.Contains(evt, "output_text.delta") {
				full.WriteString(d)
				if onDelta != nil {
					onDelta(d)
				}
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), classify(apperr.KindCompletionService, resp, err)
	}
	return full.String(), nil
}

// EstimateTokens is the coarse token accounting shared by the chunker and the
// context assembler: ceil(runes/4).
func EstimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	runes := []rune(text)
	return int(math.Ceil(float64(len(runes)) / 4.0))
}

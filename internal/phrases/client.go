// Package phrases fetches the tutor's spoken phrases from the TEA backend.
//
// The backend exposes three POST endpoints under /tea/nino/api/avatar:
// frase (a phrase for a context such as a greeting), mensaje-diario (the
// child's daily message) and recomendacion (a suggested activity). Requests
// pass through a circuit breaker so an unreachable backend is skipped
// quickly. Nothing is retried.
package phrases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/tutorvoz/internal/observe"
	"github.com/MrWong99/tutorvoz/internal/resilience"
)

// Contexts understood by the frase endpoint.
const (
	ContextGreeting     = "saludo"
	ContextMotivation   = "motivacion"
	ContextProgress     = "progreso"
	ContextRest         = "descanso"
	ContextCongrats     = "felicitacion"
	ContextCheer        = "animacion"
	ContextCategoryWord = "categoria_lenguaje"
	ContextCategoryNum  = "categoria_numeros"
	ContextCategoryCol  = "categoria_colores"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 5 * time.Second

const apiPrefix = "/tea/nino/api/avatar"

// ErrEmpty is returned when the backend answers without any text.
var ErrEmpty = errors.New("phrases: empty response")

// Recommendation is a suggested activity for a child.
type Recommendation struct {
	Phrase   string
	Category string
	Percent  float64
}

// Option is a functional option for [New].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Default: [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker sets the circuit breaker guarding requests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Client talks to the phrase backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *resilience.Breaker
	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("phrases: base URL must not be empty")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.New(resilience.Config{Name: "phrases"}, resilience.WithLogger(c.log))
	}
	return c, nil
}

type request struct {
	Context string `json:"contexto,omitempty"`
	ChildID *int64 `json:"nino_id"`
}

type response struct {
	Success    *bool   `json:"success"`
	Error      string  `json:"error"`
	Phrase     string  `json:"frase"`
	Message    string  `json:"mensaje"`
	Category   string  `json:"categoria"`
	Percentage float64 `json:"porcentaje"`
}

func childRef(childID int64) *int64 {
	if childID <= 0 {
		return nil
	}
	return &childID
}

// Phrase returns a phrase for phraseCtx (one of the Context constants). A
// childID of zero requests a generic phrase.
func (c *Client) Phrase(ctx context.Context, phraseCtx string, childID int64) (string, error) {
	if phraseCtx == "" {
		phraseCtx = ContextGreeting
	}
	resp, err := c.post(ctx, "frase", request{Context: phraseCtx, ChildID: childRef(childID)})
	if err != nil {
		return "", fmt.Errorf("phrases: phrase %q: %w", phraseCtx, err)
	}
	if resp.Phrase == "" {
		return "", fmt.Errorf("phrases: phrase %q: %w", phraseCtx, ErrEmpty)
	}
	return resp.Phrase, nil
}

// DailyMessage returns the child's daily message.
func (c *Client) DailyMessage(ctx context.Context, childID int64) (string, error) {
	resp, err := c.post(ctx, "mensaje-diario", request{ChildID: childRef(childID)})
	if err != nil {
		return "", fmt.Errorf("phrases: daily message: %w", err)
	}
	if resp.Message == "" {
		return "", fmt.Errorf("phrases: daily message: %w", ErrEmpty)
	}
	return resp.Message, nil
}

// Recommendation returns the activity the backend suggests for the child.
func (c *Client) Recommendation(ctx context.Context, childID int64) (Recommendation, error) {
	resp, err := c.post(ctx, "recomendacion", request{ChildID: childRef(childID)})
	if err != nil {
		return Recommendation{}, fmt.Errorf("phrases: recommendation: %w", err)
	}
	if resp.Phrase == "" {
		return Recommendation{}, fmt.Errorf("phrases: recommendation: %w", ErrEmpty)
	}
	return Recommendation{
		Phrase:   resp.Phrase,
		Category: resp.Category,
		Percent:  resp.Percentage,
	}, nil
}

// post sends body to endpoint through the breaker. The backend reports its
// own failures with success=false and still supplies a fallback text, which
// is returned as a normal response.
func (c *Client) post(ctx context.Context, endpoint string, body request) (response, error) {
	var out response
	start := time.Now()
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.call(ctx, endpoint, body)
		return err
	})

	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrOpen):
		status = "skipped"
	case err != nil:
		status = "error"
	}
	c.metrics.RecordPhraseRequest(ctx, endpoint, status, time.Since(start).Seconds())
	if err != nil {
		return response{}, err
	}
	if out.Success != nil && !*out.Success {
		c.log.Debug("phrase backend reported failure, using its fallback text", "endpoint", endpoint, "error", out.Error)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, endpoint string, body request) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return response{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

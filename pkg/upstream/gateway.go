// Package upstream talks to the university timetable API. Requests go to a
// primary host and are replayed once against a fallback host when the primary
// answers 5xx or cannot be reached.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/schedule-sync/pkg/errors"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultEntryPath = "/ext/"
	maxBodyBytes     = 10 << 20
	previewLimit     = 300
	userAgent        = "schedule-sync/1.0"
)

// Outcome labels recorded per attempt.
const (
	OutcomeOK           = "ok"
	OutcomeServerError  = "server_error"
	OutcomeBadStatus    = "bad_status"
	OutcomeConnectivity = "connectivity"
	OutcomeTransport    = "transport"
)

// Observer receives per-attempt instrumentation.
type Observer interface {
	ObserveUpstreamRequest(host, path, outcome string, duration time.Duration)
	ObserveUpstreamFallback(path string)
}

// Config configures a Gateway.
type Config struct {
	PrimaryURL  string
	FallbackURL string
	EntryPath   string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Observer    Observer
	Logger      *zap.Logger
}

// Gateway issues timetable requests with primary/fallback host policy.
type Gateway struct {
	primary   string
	fallback  string
	entryPath string
	client    *http.Client
	observer  Observer
	logger    *zap.Logger
}

// New constructs a Gateway with sane defaults.
func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	entry := cfg.EntryPath
	if entry == "" {
		entry = defaultEntryPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		primary:   strings.TrimRight(strings.TrimSpace(cfg.PrimaryURL), "/"),
		fallback:  strings.TrimRight(strings.TrimSpace(cfg.FallbackURL), "/"),
		entryPath: entry,
		client:    client,
		observer:  cfg.Observer,
		logger:    logger,
	}
}

type envelope struct {
	Status interface{}     `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type attempt struct {
	host   string
	status int
	body   []byte
	err    error
}

func (a attempt) ok() bool {
	return a.err == nil && a.status >= http.StatusOK && a.status < http.StatusMultipleChoices
}

func (a attempt) retryable() bool {
	if a.err != nil {
		return IsConnectivity(a.err)
	}
	return a.status >= http.StatusInternalServerError
}

// Fetch requests path with params and returns the envelope's data member.
func (g *Gateway) Fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	primaryURL, err := g.buildURL(g.primary, path, params)
	if err != nil {
		return nil, err
	}

	first := g.do(ctx, primaryURL, path)
	if first.ok() {
		return decodeEnvelope(first.body)
	}
	if !first.retryable() {
		return nil, terminalError(first, false)
	}
	if g.fallback == "" {
		return nil, terminalError(first, true)
	}

	fallbackURL, err := g.buildURL(g.fallback, path, params)
	if err != nil {
		return nil, err
	}
	if g.observer != nil {
		g.observer.ObserveUpstreamFallback(path)
	}
	g.logger.Warn("primary timetable host failed, retrying on fallback",
		zap.String("path", path),
		zap.Int("status", first.status),
		zap.Error(first.err),
	)

	second := g.do(ctx, fallbackURL, path)
	if second.ok() {
		return decodeEnvelope(second.body)
	}
	return nil, terminalError(second, true)
}

func (g *Gateway) buildURL(host, path string, params url.Values) (string, error) {
	if host == "" {
		return "", appErrors.Clone(appErrors.ErrInvalidURL, "timetable host is not configured")
	}
	base, err := url.Parse(host + g.entryPath)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", appErrors.WithDetail(appErrors.ErrInvalidURL, host, err)
	}
	query := url.Values{}
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("api", "1")
	query.Set("path", path)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (g *Gateway) do(ctx context.Context, target, path string) attempt {
	res := attempt{host: hostOf(target)}
	start := time.Now()
	defer func() {
		if g.observer != nil {
			g.observer.ObserveUpstreamRequest(res.host, path, outcomeOf(res), time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		res.err = err
		return res
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		res.err = err
		g.logger.Debug("timetable request failed", zap.String("host", res.host), zap.String("path", path), zap.Error(err))
		return res
	}
	defer resp.Body.Close()

	res.status = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.err = err
		return res
	}
	res.body = body
	g.logger.Debug("timetable request finished",
		zap.String("host", res.host),
		zap.String("path", path),
		zap.Int("status", res.status),
		zap.Duration("latency", time.Since(start)),
	)
	return res
}

func terminalError(a attempt, exhausted bool) error {
	if a.err != nil {
		if exhausted && IsConnectivity(a.err) {
			return appErrors.WithDetail(appErrors.ErrNetworkBlocked, a.host, a.err)
		}
		return appErrors.WithDetail(appErrors.ErrNetwork, a.host, a.err)
	}
	return appErrors.WithDetail(appErrors.ErrInvalidResponse, fmt.Sprintf("%s answered HTTP %d", a.host, a.status), nil)
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, parseError(body, err)
	}
	if status, ok := env.Status.(string); ok && strings.EqualFold(strings.TrimSpace(status), "error") {
		return nil, appErrors.WithDetail(appErrors.ErrInvalidResponse, Preview(body), nil)
	}
	if len(env.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Data, nil
}

// Decode unmarshals a data member into dest, reporting failures as parse errors.
func Decode(raw json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return parseError(raw, err)
	}
	return nil
}

func parseError(body []byte, cause error) error {
	return appErrors.WithDetail(appErrors.ErrParse, Preview(body), cause)
}

// Preview returns at most 300 characters of body for diagnostics.
func Preview(body []byte) string {
	runes := []rune(string(body))
	if len(runes) <= previewLimit {
		return string(runes)
	}
	return string(runes[:previewLimit])
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Host
}

func outcomeOf(a attempt) string {
	switch {
	case a.err != nil && IsConnectivity(a.err):
		return OutcomeConnectivity
	case a.err != nil:
		return OutcomeTransport
	case a.status >= http.StatusInternalServerError:
		return OutcomeServerError
	case a.status < http.StatusOK || a.status >= http.StatusMultipleChoices:
		return OutcomeBadStatus
	default:
		return OutcomeOK
	}
}

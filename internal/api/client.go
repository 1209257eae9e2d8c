package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/inventory-bot/internal/infra/metrics"
)

// TokenSource отдаёт актуальный access-токен чата. Клиент читает его
// на каждый запрос и ничего не кеширует.
type TokenSource interface {
	AccessToken(ctx context.Context, scope int64) (string, bool, error)
}

// UnauthorizedHandler вызывается, когда сервер отверг токен чата.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context, scope int64)
}

type Options struct {
	BaseURL   string
	LoginPath string
	// Timeout 0 — таймаут http.Client по умолчанию (его нет)
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	base      string
	loginPath string
	http      *http.Client
	tokens    TokenSource
	log       *slog.Logger

	mu     sync.RWMutex
	unauth UnauthorizedHandler
}

func New(opts Options, tokens TokenSource, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/api/login/"
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		loginPath: loginPath,
		http:      hc,
		tokens:    tokens,
		log:       log,
	}, nil
}

func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) {
	c.mu.Lock()
	c.unauth = h
	c.mu.Unlock()
}

// ResolveURL абсолютные ссылки как есть, относительные от базового адреса.
func (c *Client) ResolveURL(p string) string {
	if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.base + p
}

type request struct {
	method   string
	path     string
	endpoint string // метка для метрик и логов
	scope    int64
	auth     bool
	// token явный токен (сразу после логина, до сохранения сессии)
	token       string
	body        []byte
	contentType string
	// silent не звать обработчик 401 (выход из аккаунта)
	silent bool
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if r.endpoint == "" {
		r.endpoint = r.path
	}
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.ResolveURL(r.path), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	ct := r.contentType
	if ct == "" {
		ct = "application/json"
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	fromStore := false
	if r.auth {
		token := r.token
		if token == "" {
			t, ok, err := c.tokens.AccessToken(ctx, r.scope)
			if err != nil {
				return fmt.Errorf("read access token: %w", err)
			}
			if !ok {
				c.unauthorized(ctx, r)
				return &Error{Kind: KindUnauthorized, Detail: "Сессия не найдена, войдите снова."}
			}
			token, fromStore = t, true
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APILatency.WithLabelValues(r.method, r.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(r.method, r.endpoint, "error").Inc()
		c.log.Warn("api request failed",
			"method", r.method, "endpoint", r.endpoint, "request_id", reqID, "err", err)
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.APIRequests.WithLabelValues(r.method, r.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail, fields := parseErrorBody(data)
		c.log.Debug("api error response",
			"method", r.method, "endpoint", r.endpoint, "status", resp.StatusCode,
			"request_id", reqID, "detail", detail)
		if resp.StatusCode == http.StatusUnauthorized && fromStore {
			c.unauthorized(ctx, r)
			return &Error{Kind: KindUnauthorized, Status: resp.StatusCode, Detail: detail, Fields: fields}
		}
		return &Error{Kind: KindServer, Status: resp.StatusCode, Detail: detail, Fields: fields}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", r.method, r.endpoint, err)
	}
	return nil
}

func (c *Client) unauthorized(ctx context.Context, r request) {
	if r.silent {
		return
	}
	c.mu.RLock()
	h := c.unauth
	c.mu.RUnlock()
	if h != nil {
		h.HandleUnauthorized(ctx, r.scope)
	}
}

func jsonBody(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// все тела запросов — простые структуры
		panic(fmt.Sprintf("api: marshal request body: %v", err))
	}
	return b
}

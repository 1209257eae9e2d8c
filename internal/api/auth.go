package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var errNoTokens = errors.New("login response carries no tokens")

// Login получает пару токенов. Если сервер не вернул профиль
// (эндпоинт /api/token/), профиль запрашивается новым токеном;
// сбой этого запроса не отменяет вход, User остаётся пустым.
func (c *Client) Login(ctx context.Context, creds Credentials) (Tokens, error) {
	if creds.Username == "" && strings.HasSuffix(c.loginPath, "/token/") {
		creds.Username = creds.Email
	}
	var t Tokens
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   c.loginPath,
		body:   jsonBody(creds),
	}, &t)
	if err != nil {
		return Tokens{}, err
	}
	if !t.Complete() {
		return Tokens{}, &Error{Kind: KindServer, Status: http.StatusOK, Err: errNoTokens}
	}
	if len(t.User) == 0 || string(t.User) == "null" {
		raw, err := c.UserWithToken(ctx, t.Access)
		if err != nil {
			c.log.Warn("login: user fetch failed", "err", err)
			raw = nil
		}
		t.User = raw
	}
	return t, nil
}

// UserWithToken профиль по явно переданному токену, до сохранения сессии.
func (c *Client) UserWithToken(ctx context.Context, access string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/user/",
		auth:   true,
		token:  access,
	}, &raw)
	return raw, err
}

// Register создаёт аккаунт. Токены в ответе необязательны.
func (c *Client) Register(ctx context.Context, reg Registration) (Tokens, error) {
	var t Tokens
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/register/",
		body:   jsonBody(reg),
	}, &t)
	return t, err
}

// CurrentUser возвращает профиль и сырой JSON для кеша сессии.
func (c *Client) CurrentUser(ctx context.Context, scope int64) (*User, json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/user/",
		auth:   true,
		scope:  scope,
	}, &raw); err != nil {
		return nil, nil, err
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, err
	}
	return &u, raw, nil
}

// Logout отзывает refresh-токен на сервере.
func (c *Client) Logout(ctx context.Context, scope int64, refresh string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/logout/",
		auth:   true,
		scope:  scope,
		silent: true,
		body:   jsonBody(map[string]string{"refresh": refresh}),
	}, nil)
}

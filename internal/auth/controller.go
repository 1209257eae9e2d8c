package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/infra/metrics"
	"github.com/Spok95/inventory-bot/internal/session"
)

type State string

const (
	Unknown         State = "unknown"
	Loading         State = "loading"
	Authenticated   State = "authenticated"
	Unauthenticated State = "unauthenticated"
)

var ErrNoTokens = errors.New("server returned no tokens")

// Listener получает каждый переход состояния чата.
type Listener func(ctx context.Context, chatID int64, from, to State)

// Controller единственный владелец состояния авторизации.
// Чат — отдельное «устройство» со своей сессией.
type Controller struct {
	api   *api.Client
	store *session.Store
	log   *slog.Logger

	mu        sync.Mutex
	states    map[int64]State
	users     map[int64]*api.User
	listeners []Listener
}

func New(client *api.Client, store *session.Store, log *slog.Logger) *Controller {
	c := &Controller{
		api:    client,
		store:  store,
		log:    log,
		states: map[int64]State{},
		users:  map[int64]*api.User{},
	}
	client.SetUnauthorizedHandler(c)
	return c
}

func (c *Controller) OnChange(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Controller) State(chatID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[chatID]; ok {
		return s
	}
	return Unknown
}

// User текущий профиль (из кеша сессии или последнего запроса).
func (c *Controller) User(chatID int64) *api.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[chatID]
}

// Start первая загрузка чата: Unknown → Loading → по закешированному профилю.
// Повторные вызовы возвращают текущее состояние.
func (c *Controller) Start(ctx context.Context, chatID int64) (State, error) {
	c.mu.Lock()
	if s, ok := c.states[chatID]; ok && s != Unknown {
		c.mu.Unlock()
		return s, nil
	}
	c.states[chatID] = Loading
	c.mu.Unlock()

	raw, ok, err := c.store.User(ctx, chatID)
	if err != nil {
		c.log.Error("read cached user failed", "chat_id", chatID, "err", err)
		c.transition(ctx, chatID, Unauthenticated, nil)
		return Unauthenticated, err
	}
	if !ok {
		c.transition(ctx, chatID, Unauthenticated, nil)
		return Unauthenticated, nil
	}
	c.transition(ctx, chatID, Authenticated, decodeUser(raw))
	return Authenticated, nil
}

func (c *Controller) Login(ctx context.Context, chatID int64, creds api.Credentials) (*api.User, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, api.Validationf("Укажите email и пароль.")
	}
	tokens, err := c.api.Login(ctx, creds)
	if err != nil {
		c.log.Info("login failed", "chat_id", chatID, "err", err)
		c.transition(ctx, chatID, Unauthenticated, nil)
		return nil, err
	}
	return c.establish(ctx, chatID, tokens)
}

// Register создаёт аккаунт и не меняет состояние авторизации.
// Если сервер вернул токены, вызывающий может передать их в Adopt,
// иначе — войти через Login.
func (c *Controller) Register(ctx context.Context, chatID int64, reg api.Registration) (api.Tokens, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Name == "" || reg.Email == "" || reg.Password == "" {
		return api.Tokens{}, api.Validationf("Заполните все поля.")
	}
	t, err := c.api.Register(ctx, reg)
	if err != nil {
		c.log.Info("register failed", "chat_id", chatID, "err", err)
		return api.Tokens{}, err
	}
	return t, nil
}

// Adopt открывает сессию по уже полученным токенам. Профиль, если его
// нет в ответе, запрашивается отдельно; без него вход всё равно состоится.
func (c *Controller) Adopt(ctx context.Context, chatID int64, tokens api.Tokens) (*api.User, error) {
	if !tokens.Complete() {
		return nil, ErrNoTokens
	}
	if !hasUser(tokens.User) {
		raw, err := c.api.UserWithToken(ctx, tokens.Access)
		if err != nil {
			c.log.Warn("user fetch after register failed", "chat_id", chatID, "err", err)
			raw = nil
		}
		tokens.User = raw
	}
	return c.establish(ctx, chatID, tokens)
}

func (c *Controller) establish(ctx context.Context, chatID int64, tokens api.Tokens) (*api.User, error) {
	if !tokens.Complete() {
		c.transition(ctx, chatID, Unauthenticated, nil)
		return nil, ErrNoTokens
	}
	// пустой профиль-заглушка: Start после перезапуска увидит сессию,
	// RefreshProfile заменит его настоящим
	if !hasUser(tokens.User) {
		tokens.User = json.RawMessage("{}")
	}
	if err := c.store.Save(ctx, chatID, tokens.Access, tokens.Refresh, tokens.User); err != nil {
		c.log.Error("save session failed", "chat_id", chatID, "err", err)
		c.transition(ctx, chatID, Unauthenticated, nil)
		return nil, err
	}
	u := decodeUser(tokens.User)
	if exp, ok := ExpiresAt(tokens.Access); ok {
		c.log.Debug("session established", "chat_id", chatID, "access_expires_at", exp)
	}
	c.transition(ctx, chatID, Authenticated, u)
	return u, nil
}

// Logout отзывает refresh-токен (если сервер доступен) и очищает сессию.
func (c *Controller) Logout(ctx context.Context, chatID int64) error {
	if refresh, ok, err := c.store.RefreshToken(ctx, chatID); err == nil && ok {
		if err := c.api.Logout(ctx, chatID, refresh); err != nil {
			c.log.Warn("server logout failed", "chat_id", chatID, "err", err)
		}
	}
	err := c.store.Clear(ctx, chatID)
	if err != nil {
		c.log.Error("clear session failed", "chat_id", chatID, "err", err)
	}
	c.transition(ctx, chatID, Unauthenticated, nil)
	return err
}

// HandleUnauthorized сервер отверг токен: сессия очищается.
func (c *Controller) HandleUnauthorized(ctx context.Context, chatID int64) {
	if err := c.store.Clear(ctx, chatID); err != nil {
		c.log.Error("clear session failed", "chat_id", chatID, "err", err)
	}
	c.log.Info("session rejected by server", "chat_id", chatID)
	c.transition(ctx, chatID, Unauthenticated, nil)
}

// RefreshProfile запрашивает профиль и обновляет кеш сессии.
func (c *Controller) RefreshProfile(ctx context.Context, chatID int64) (*api.User, error) {
	u, raw, err := c.api.CurrentUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	access, okA, errA := c.store.AccessToken(ctx, chatID)
	refresh, okR, errR := c.store.RefreshToken(ctx, chatID)
	if errA == nil && errR == nil && okA && okR {
		if err := c.store.Save(ctx, chatID, access, refresh, raw); err != nil {
			c.transition(ctx, chatID, Unauthenticated, nil)
			return nil, fmt.Errorf("cache profile: %w", err)
		}
	}
	c.mu.Lock()
	if c.states[chatID] == Authenticated {
		c.users[chatID] = u
	}
	c.mu.Unlock()
	return u, nil
}

func (c *Controller) transition(ctx context.Context, chatID int64, to State, u *api.User) {
	c.mu.Lock()
	from, ok := c.states[chatID]
	if !ok {
		from = Unknown
	}
	c.states[chatID] = to
	if to == Authenticated {
		c.users[chatID] = u
	} else {
		delete(c.users, chatID)
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	metrics.AuthTransitions.WithLabelValues(string(to)).Inc()
	if from == to {
		return
	}
	c.log.Debug("auth state changed", "chat_id", chatID, "from", from, "to", to)
	for _, l := range listeners {
		l(ctx, chatID, from, to)
	}
}

func hasUser(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func decodeUser(raw json.RawMessage) *api.User {
	var u api.User
	if len(raw) == 0 || json.Unmarshal(raw, &u) != nil {
		return &api.User{}
	}
	return &u
}

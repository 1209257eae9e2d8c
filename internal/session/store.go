package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeyAccess  = "access_token"
	KeyRefresh = "refresh_token"
	KeyUser    = "user_info"
)

var keys = []string{KeyAccess, KeyRefresh, KeyUser}

// Store хранилище сессии: пара токенов и закешированный профиль.
// Профиль хранится как непрозрачный JSON.
type Store struct {
	kv     KV
	sealer *Sealer
}

func NewStore(kv KV, sealer *Sealer) *Store {
	return &Store{kv: kv, sealer: sealer}
}

// Save записывает все три значения. При любой ошибке сессия
// считается недействительной: пытаемся её очистить и возвращаем ошибку.
func (s *Store) Save(ctx context.Context, scope int64, access, refresh string, user json.RawMessage) error {
	if len(user) == 0 {
		user = json.RawMessage("null")
	}
	values, err := s.seal(map[string]string{KeyAccess: access, KeyRefresh: refresh, KeyUser: string(user)})
	if err == nil {
		err = s.kv.SetMany(ctx, scope, values)
	}
	if err != nil {
		if cerr := s.Clear(ctx, scope); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) seal(plain map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(plain))
	for k, v := range plain {
		sealed, err := s.sealer.Seal(v)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", k, err)
		}
		out[k] = sealed
	}
	return out, nil
}

func (s *Store) AccessToken(ctx context.Context, scope int64) (string, bool, error) {
	return s.get(ctx, scope, KeyAccess)
}

func (s *Store) RefreshToken(ctx context.Context, scope int64) (string, bool, error) {
	return s.get(ctx, scope, KeyRefresh)
}

// User возвращает закешированный профиль; JSON null считается отсутствием.
func (s *Store) User(ctx context.Context, scope int64) (json.RawMessage, bool, error) {
	v, ok, err := s.get(ctx, scope, KeyUser)
	if err != nil || !ok || v == "null" {
		return nil, false, err
	}
	return json.RawMessage(v), true, nil
}

func (s *Store) Clear(ctx context.Context, scope int64) error {
	return s.kv.Delete(ctx, scope, keys...)
}

func (s *Store) get(ctx context.Context, scope int64, key string) (string, bool, error) {
	raw, ok, err := s.kv.Get(ctx, scope, key)
	if err != nil || !ok {
		return "", false, err
	}
	v, err := s.sealer.Open(raw)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

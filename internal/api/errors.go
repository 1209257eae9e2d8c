package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindNetwork      Kind = "network"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindServer       Kind = "server"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNetwork      = errors.New("network error")
	ErrValidation   = errors.New("validation failed")
)

const NetworkMessage = "Не удалось связаться с сервером. Проверьте подключение к сети."

// Error ошибка обращения к API.
type Error struct {
	Kind   Kind
	Status int
	// Detail поле "detail" ответа сервера либо текст проверки формы
	Detail string
	// Fields ошибки полей в формате DRF: {"username": ["..."]}
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// FieldError первая ошибка поля (по алфавиту имён полей, для стабильности).
func (e *Error) FieldError() string {
	names := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		if len(v) > 0 {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return e.Fields[names[0]][0]
}

// Message текст для пользователя: сообщение сервера как есть,
// иначе общий текст.
func Message(err error, fallback string) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return fallback
	}
	if ae.Kind == KindNetwork {
		return NetworkMessage
	}
	if ae.Detail != "" {
		return ae.Detail
	}
	if f := ae.FieldError(); f != "" {
		return f
	}
	return fallback
}

// parseErrorBody разбирает тело ошибки DRF: {"detail": "..."} или {"field": ["..."]}.
func parseErrorBody(body []byte) (string, map[string][]string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", nil
	}
	var detail string
	for _, k := range []string{"detail", "error", "message"} {
		var s string
		if v, ok := raw[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			detail = s
			break
		}
	}
	fields := map[string][]string{}
	for k, v := range raw {
		if k == "detail" || k == "error" || k == "message" {
			continue
		}
		var list []string
		if json.Unmarshal(v, &list) == nil {
			fields[k] = list
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			fields[k] = []string{s}
		}
	}
	return detail, fields
}

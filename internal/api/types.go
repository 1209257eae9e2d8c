package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ID идентификатор сервера: число или строка (UUID).
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Quantity целое неотрицательное количество. Сервер может прислать
// число или десятичную строку ("3.00"); дробная часть округляется.
type Quantity int64

func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", s, err)
	}
	*q = Quantity(math.Round(f))
	return nil
}

type User struct {
	ID       ID     `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// DisplayName имя для приветствия, как в шапке приложения.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "Гость"
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	}
	return "Гость"
}

type Category struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Unit struct {
	ID     ID     `json:"id"`
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol"`
}

type Image struct {
	Image string `json:"image"`
}

type Item struct {
	ID          ID         `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Quantity    Quantity   `json:"quantity"`
	Category    *Category  `json:"category"`
	Unit        *Unit      `json:"unit"`
	Image       string     `json:"image"`
	Images      []Image    `json:"images"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ImagePath первое доступное изображение (поле image или список images).
func (it Item) ImagePath() string {
	if it.Image != "" {
		return it.Image
	}
	for _, im := range it.Images {
		if im.Image != "" {
			return im.Image
		}
	}
	return ""
}

func (it Item) UnitSymbol() string {
	if it.Unit == nil {
		return ""
	}
	return it.Unit.Symbol
}

func (it Item) CategoryName() string {
	if it.Category == nil {
		return ""
	}
	return it.Category.Name
}

type Credentials struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tokens ответ логина. User может отсутствовать (эндпоинт /api/token/).
type Tokens struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	User    json.RawMessage `json:"user,omitempty"`
}

func (t Tokens) Complete() bool { return t.Access != "" && t.Refresh != "" }

type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type NewItem struct {
	Name        string
	Description string
	Quantity    int64
	CategoryID  ID
	UnitID      ID
	Image       *Upload
}

// Validate проверка формы до отправки запроса.
func (n NewItem) Validate() error {
	var missing []string
	if strings.TrimSpace(n.Name) == "" {
		missing = append(missing, "название")
	}
	if n.CategoryID == "" {
		missing = append(missing, "категория")
	}
	if n.UnitID == "" {
		missing = append(missing, "единица")
	}
	if len(missing) > 0 {
		return Validationf("Заполните обязательные поля: %s", strings.Join(missing, ", "))
	}
	if n.Quantity < 0 {
		return Validationf("Количество не может быть отрицательным")
	}
	return nil
}

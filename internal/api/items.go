package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

const maxPages = 100

var (
	errForeignNext  = errors.New("next page link points to another host")
	errTooManyPages = errors.New("page limit reached")
)

type page[T any] struct {
	Results []T     `json:"results"`
	Next    *string `json:"next"`
}

// listAll принимает и голый массив, и страницы DRF {results, next}.
func listAll[T any](ctx context.Context, c *Client, scope int64, path string) ([]T, error) {
	var out []T
	endpoint := path
	for i := 0; path != "" && i < maxPages; i++ {
		var raw json.RawMessage
		if err := c.do(ctx, request{
			method:   http.MethodGet,
			path:     path,
			endpoint: endpoint,
			auth:     true,
			scope:    scope,
		}, &raw); err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []T
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("decode %s: %w", endpoint, err)
			}
			return append(out, list...), nil
		}
		var p page[T]
		if len(trimmed) > 0 {
			if err := json.Unmarshal(trimmed, &p); err != nil {
				return nil, fmt.Errorf("decode %s: %w", endpoint, err)
			}
		}
		out = append(out, p.Results...)
		path = ""
		if p.Next != nil && *p.Next != "" {
			next, err := c.sameOrigin(*p.Next)
			if err != nil {
				return nil, &Error{Kind: KindServer, Status: http.StatusOK, Err: err}
			}
			path = next
		}
	}
	if path != "" {
		c.log.Warn("pagination truncated", "endpoint", endpoint, "pages", maxPages, "next", path)
		return nil, &Error{Kind: KindServer, Status: http.StatusOK, Err: fmt.Errorf("%s: %w (%d)", endpoint, errTooManyPages, maxPages)}
	}
	return out, nil
}

// sameOrigin пропускает относительную ссылку и абсолютную с той же
// схемой и хостом, что у базового адреса. Токен на чужой хост не уходит.
func (c *Client) sameOrigin(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("next page link %q: %w", next, err)
	}
	if !u.IsAbs() && u.Host == "" {
		return next, nil
	}
	base, err := url.Parse(c.base)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s", errForeignNext, u.Host)
	}
	return next, nil
}

func (c *Client) ListItems(ctx context.Context, scope int64) ([]Item, error) {
	return listAll[Item](ctx, c, scope, "/api/items/")
}

func (c *Client) ListCategories(ctx context.Context, scope int64) ([]Category, error) {
	return listAll[Category](ctx, c, scope, "/api/categories/")
}

func (c *Client) ListUnits(ctx context.Context, scope int64) ([]Unit, error) {
	return listAll[Unit](ctx, c, scope, "/api/units/")
}

// PatchQuantity меняет только поле quantity. Сервер может ответить
// пустым телом — тогда item == nil.
func (c *Client) PatchQuantity(ctx context.Context, scope int64, id ID, qty int64) (*Item, error) {
	var it Item
	var got json.RawMessage
	err := c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/api/items/" + url.PathEscape(string(id)) + "/",
		endpoint: "/api/items/{id}/",
		auth:     true,
		scope:    scope,
		body:     jsonBody(map[string]int64{"quantity": qty}),
	}, &got)
	if err != nil {
		return nil, err
	}
	if len(got) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(got, &it); err != nil {
		return nil, fmt.Errorf("decode patched item: %w", err)
	}
	return &it, nil
}

// CreateItem отправляет multipart-форму с необязательным изображением.
func (c *Client) CreateItem(ctx context.Context, scope int64, n NewItem) (*Item, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"name", n.Name},
		{"description", n.Description},
		{"quantity", strconv.FormatInt(n.Quantity, 10)},
		{"category_id", string(n.CategoryID)},
		{"unit_id", string(n.UnitID)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if n.Image != nil && len(n.Image.Data) > 0 {
		name := n.Image.Name
		if name == "" {
			name = "photo.jpg"
		}
		ct := n.Image.ContentType
		if ct == "" {
			ct = "image/jpeg"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(n.Image.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var it Item
	if err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/items/",
		auth:        true,
		scope:       scope,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

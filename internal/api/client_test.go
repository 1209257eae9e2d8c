package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/Spok95/inventory-bot/internal/infra/logger"
)

type tokenMap struct {
	mu     sync.Mutex
	tokens map[int64]string
}

func (m *tokenMap) AccessToken(_ context.Context, scope int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[scope]
	return t, ok, nil
}

func (m *tokenMap) set(scope int64, t string) {
	m.mu.Lock()
	m.tokens[scope] = t
	m.mu.Unlock()
}

type unauthRecorder struct {
	mu     sync.Mutex
	scopes []int64
}

func (u *unauthRecorder) HandleUnauthorized(_ context.Context, scope int64) {
	u.mu.Lock()
	u.scopes = append(u.scopes, scope)
	u.mu.Unlock()
}

func newTestClient(t *testing.T, r *mux.Router, loginPath string) (*Client, *tokenMap, *unauthRecorder) {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tokens := &tokenMap{tokens: map[int64]string{}}
	c, err := New(Options{BaseURL: srv.URL + "/", LoginPath: loginPath}, tokens, logger.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &unauthRecorder{}
	c.SetUnauthorizedHandler(rec)
	return c, tokens, rec
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8000", "::"} {
		if _, err := New(Options{BaseURL: u}, nil, logger.Discard()); err == nil {
			t.Errorf("New(%q) succeeded", u)
		}
	}
}

func TestLoginReturnsTokensAndUser(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/login/", func(w http.ResponseWriter, req *http.Request) {
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if req.Header.Get("Authorization") != "" {
			t.Error("login must not carry a bearer token")
		}
		var creds Credentials
		_ = json.NewDecoder(req.Body).Decode(&creds)
		if creds.Email != "a@b.com" || creds.Password != "x" {
			t.Errorf("creds = %+v", creds)
		}
		writeJSON(w, 200, `{"access":"T1","refresh":"T2","user":{"id":1,"name":"A"}}`)
	}).Methods(http.MethodPost)

	c, _, _ := newTestClient(t, r, "")
	tok, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.Access != "T1" || tok.Refresh != "T2" {
		t.Errorf("tokens = %+v", tok)
	}
	var u User
	if err := json.Unmarshal(tok.User, &u); err != nil || u.ID != "1" || u.Name != "A" {
		t.Errorf("user = %+v, %v", u, err)
	}
}

func TestLoginViaTokenEndpointFetchesUser(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/token/", func(w http.ResponseWriter, req *http.Request) {
		var creds Credentials
		_ = json.NewDecoder(req.Body).Decode(&creds)
		if creds.Username != "a@b.com" {
			t.Errorf("username = %q, want email copied", creds.Username)
		}
		writeJSON(w, 200, `{"access":"T1","refresh":"T2"}`)
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/user/", func(w http.ResponseWriter, req *http.Request) {
		if got := req.Header.Get("Authorization"); got != "Bearer T1" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, 200, `{"id":"u-1","email":"a@b.com"}`)
	}).Methods(http.MethodGet)

	c, _, rec := newTestClient(t, r, "/api/token/")
	tok, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !strings.Contains(string(tok.User), `"u-1"`) {
		t.Errorf("user = %s", tok.User)
	}
	if len(rec.scopes) != 0 {
		t.Errorf("unauthorized handler called: %v", rec.scopes)
	}
}

func TestLoginKeepsTokensWhenUserFetchFails(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/token/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"access":"T1","refresh":"T2"}`)
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/user/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 500, ``)
	}).Methods(http.MethodGet)

	c, _, rec := newTestClient(t, r, "/api/token/")
	tok, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tok.Access != "T1" || tok.Refresh != "T2" {
		t.Errorf("tokens = %+v", tok)
	}
	if len(tok.User) != 0 {
		t.Errorf("user = %s, want empty", tok.User)
	}
	if len(rec.scopes) != 0 {
		t.Errorf("unauthorized handler called: %v", rec.scopes)
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"detail verbatim", 401, `{"detail":"No active account found with the given credentials"}`, "No active account found with the given credentials"},
		{"field error", 400, `{"email":["Enter a valid email address."]}`, "Enter a valid email address."},
		{"no body", 500, ``, "fallback"},
		{"no tokens", 200, `{"user":{"id":1}}`, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.NewRouter()
			r.HandleFunc("/api/login/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c, _, rec := newTestClient(t, r, "")

			_, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "bad"})
			if err == nil {
				t.Fatal("Login() succeeded")
			}
			if got := Message(err, "fallback"); got != tt.wantMsg {
				t.Errorf("Message() = %q, want %q", got, tt.wantMsg)
			}
			if len(rec.scopes) != 0 {
				t.Error("login failure must not trigger the unauthorized handler")
			}
		})
	}
}

func TestNetworkErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base}, &tokenMap{tokens: map[int64]string{}}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Login(context.Background(), Credentials{Email: "a", Password: "b"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("error = %v, want ErrNetwork", err)
	}
	if got := Message(err, "x"); got != NetworkMessage {
		t.Errorf("Message() = %q", got)
	}
}

func TestBearerTokenIsReadOnEveryCall(t *testing.T) {
	var seen []string
	r := mux.NewRouter()
	r.HandleFunc("/api/user/", func(w http.ResponseWriter, req *http.Request) {
		seen = append(seen, req.Header.Get("Authorization"))
		if req.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		writeJSON(w, 200, `{"id":1,"name":"A"}`)
	})
	c, tokens, _ := newTestClient(t, r, "")

	tokens.set(9, "old")
	if _, _, err := c.CurrentUser(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	tokens.set(9, "new")
	u, raw, err := c.CurrentUser(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if u.DisplayName() != "A" || len(raw) == 0 {
		t.Errorf("user = %+v, raw = %s", u, raw)
	}
	if len(seen) != 2 || seen[0] != "Bearer old" || seen[1] != "Bearer new" {
		t.Errorf("Authorization headers = %v", seen)
	}
}

func TestUnauthorizedTriggersHandler(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 401, `{"detail":"Given token not valid for any token type"}`)
	})
	c, tokens, rec := newTestClient(t, r, "")
	tokens.set(3, "expired")

	_, err := c.ListItems(context.Background(), 3)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if len(rec.scopes) != 1 || rec.scopes[0] != 3 {
		t.Errorf("handler scopes = %v, want [3]", rec.scopes)
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(http.ResponseWriter, *http.Request) {
		t.Error("request must not reach the server without a token")
	})
	c, _, rec := newTestClient(t, r, "")

	if _, err := c.ListItems(context.Background(), 4); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v", err)
	}
	if len(rec.scopes) != 1 {
		t.Errorf("handler scopes = %v", rec.scopes)
	}
}

func TestLogoutDoesNotTriggerHandler(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/logout/", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body["refresh"] != "R" {
			t.Errorf("body = %v", body)
		}
		writeJSON(w, 401, `{"detail":"expired"}`)
	}).Methods(http.MethodPost)
	c, tokens, rec := newTestClient(t, r, "")
	tokens.set(1, "A")

	if err := c.Logout(context.Background(), 1, "R"); err == nil {
		t.Error("Logout() error = nil")
	}
	if len(rec.scopes) != 0 {
		t.Errorf("handler scopes = %v", rec.scopes)
	}
}

func TestListItemsShapes(t *testing.T) {
	r := mux.NewRouter()
	var base string
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("page") == "2" {
			writeJSON(w, 200, `{"results":[{"id":"b","name":"B","quantity":"2.00"}],"next":null}`)
			return
		}
		writeJSON(w, 200, `{"results":[{"id":7,"name":"A","quantity":3,"unit":{"id":1,"symbol":"pcs"}}],"next":"`+base+`/api/items/?page=2"}`)
	})
	r.HandleFunc("/api/categories/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `[{"id":1,"name":"Ткани"},{"id":2,"name":"Нитки"}]`)
	})
	r.HandleFunc("/api/units/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"count":0}`)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	base = srv.URL

	tokens := &tokenMap{tokens: map[int64]string{1: "A"}}
	c, _ := New(Options{BaseURL: srv.URL}, tokens, logger.Discard())
	ctx := context.Background()

	items, err := c.ListItems(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != "7" || items[0].Quantity != 3 || items[1].Quantity != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].UnitSymbol() != "pcs" || items[1].UnitSymbol() != "" {
		t.Errorf("unit symbols = %q, %q", items[0].UnitSymbol(), items[1].UnitSymbol())
	}

	cats, err := c.ListCategories(ctx, 1)
	if err != nil || len(cats) != 2 || cats[1].Name != "Нитки" {
		t.Errorf("categories = %+v, %v", cats, err)
	}
	units, err := c.ListUnits(ctx, 1)
	if err != nil || len(units) != 0 {
		t.Errorf("units = %+v, %v", units, err)
	}
}

func TestListItemsRejectsForeignNext(t *testing.T) {
	var foreignAuth []string
	var mu sync.Mutex
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		foreignAuth = append(foreignAuth, req.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, 200, `{"results":[],"next":null}`)
	}))
	defer foreign.Close()

	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, `{"results":[{"id":1,"name":"A","quantity":1}],"next":"`+foreign.URL+`/x"}`)
	})
	c, tokens, _ := newTestClient(t, r, "")
	tokens.set(1, "SECRET")

	items, err := c.ListItems(context.Background(), 1)
	if !errors.Is(err, errForeignNext) {
		t.Errorf("ListItems() error = %v, want errForeignNext", err)
	}
	if items != nil {
		t.Errorf("items = %+v, want nil", items)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(foreignAuth) != 0 {
		t.Errorf("foreign host received requests with Authorization %q", foreignAuth)
	}
}

func TestListItemsPageLimit(t *testing.T) {
	var calls int
	var mu sync.Mutex
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		// сервер бесконечно ссылается на следующую страницу
		writeJSON(w, 200, `{"results":[{"id":1,"name":"A","quantity":1}],"next":"/api/items/?page=n"}`)
	})
	c, tokens, _ := newTestClient(t, r, "")
	tokens.set(1, "A")

	_, err := c.ListItems(context.Background(), 1)
	if !errors.Is(err, errTooManyPages) {
		t.Fatalf("ListItems() error = %v, want errTooManyPages", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != maxPages {
		t.Errorf("requests = %d, want %d", calls, maxPages)
	}
}

func TestPatchQuantityBody(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/items/{id}/", func(w http.ResponseWriter, req *http.Request) {
		if id := mux.Vars(req)["id"]; id != "7" {
			t.Errorf("id = %q", id)
		}
		b, _ := io.ReadAll(req.Body)
		if string(b) != `{"quantity":4}` {
			t.Errorf("body = %s", b)
		}
		writeJSON(w, 200, `{"id":7,"name":"A","quantity":"4.00"}`)
	}).Methods(http.MethodPatch)
	c, tokens, _ := newTestClient(t, r, "")
	tokens.set(1, "A")

	it, err := c.PatchQuantity(context.Background(), 1, "7", 4)
	if err != nil {
		t.Fatal(err)
	}
	if it == nil || it.Quantity != 4 {
		t.Errorf("item = %+v", it)
	}
}

func TestCreateItemMultipart(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		want := map[string]string{"name": "Лён", "quantity": "5", "category_id": "c1", "unit_id": "u1"}
		for k, v := range want {
			if got := req.FormValue(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
		f, hdr, err := req.FormFile("image")
		if err != nil {
			t.Fatalf("image: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "p.jpg" || string(data) != "JPEG" {
			t.Errorf("image = %s %q", hdr.Filename, data)
		}
		writeJSON(w, 201, `{"id":"new","name":"Лён","quantity":5}`)
	}).Methods(http.MethodPost)
	c, tokens, _ := newTestClient(t, r, "")
	tokens.set(1, "A")

	it, err := c.CreateItem(context.Background(), 1, NewItem{
		Name: "Лён", Quantity: 5, CategoryID: "c1", UnitID: "u1",
		Image: &Upload{Name: "p.jpg", Data: []byte("JPEG")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if it.ID != "new" {
		t.Errorf("item = %+v", it)
	}
}

func TestCreateItemValidatesBeforeRequest(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(http.ResponseWriter, *http.Request) {
		t.Error("invalid form reached the server")
	})
	c, tokens, _ := newTestClient(t, r, "")
	tokens.set(1, "A")

	_, err := c.CreateItem(context.Background(), 1, NewItem{Name: "x"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if msg := Message(err, "fallback"); !strings.Contains(msg, "категория") {
		t.Errorf("Message() = %q", msg)
	}
}

func TestResolveURL(t *testing.T) {
	c, _ := New(Options{BaseURL: "http://h:8000/"}, nil, logger.Discard())
	tests := map[string]string{
		"":                          "",
		"/media/a.jpg":              "http://h:8000/media/a.jpg",
		"media/a.jpg":               "http://h:8000/media/a.jpg",
		"https://cdn.example/a.jpg": "https://cdn.example/a.jpg",
	}
	for in, want := range tests {
		if got := c.ResolveURL(in); got != want {
			t.Errorf("ResolveURL(%q) = %q, want %q", in, got, want)
		}
	}
}

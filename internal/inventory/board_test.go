package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/infra/logger"
	"github.com/Spok95/inventory-bot/internal/session"
)

type patch struct {
	id  api.ID
	qty int64
}

type fakeAPI struct {
	mu      sync.Mutex
	items   []api.Item
	patches []patch
	fail    error
	// block != nil — PatchQuantity ждёт, пока канал не закроют
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAPI) ListItems(context.Context, int64) ([]api.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Item(nil), f.items...), nil
}

func (f *fakeAPI) PatchQuantity(_ context.Context, _ int64, id api.ID, qty int64) (*api.Item, error) {
	f.mu.Lock()
	f.patches = append(f.patches, patch{id, qty})
	block, started, fail := f.block, f.started, f.fail
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fail != nil {
		return nil, fail
	}
	return &api.Item{ID: id, Name: "srv", Quantity: api.Quantity(qty)}, nil
}

func (f *fakeAPI) sent() []patch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]patch(nil), f.patches...)
}

func loadedBoard(t *testing.T, f *fakeAPI) *Board {
	t.Helper()
	b := NewBoard(f, logger.Discard())
	if _, err := b.Refresh(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	return b
}

func displayed(t *testing.T, b *Board, id api.ID) Entry {
	t.Helper()
	e, ok := b.Displayed(1, id)
	if !ok {
		t.Fatalf("item %s missing", id)
	}
	return e
}

func TestIncrementAgainstServer(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	r := mux.NewRouter()
	r.HandleFunc("/api/items/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":7,"name":"Болт","quantity":3}]`)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/items/{id}/", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["id"] != "7" {
			t.Errorf("patched id = %s", mux.Vars(req)["id"])
		}
		data, _ := io.ReadAll(req.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":7,"name":"Болт","quantity":4}`)
	}).Methods(http.MethodPatch)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	store := session.NewStore(session.NewMemoryKV(), nil)
	_ = store.Save(ctx, 1, "T1", "T2", json.RawMessage(`{"id":1}`))
	client, err := api.New(api.Options{BaseURL: srv.URL}, store, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	b := NewBoard(client, logger.Discard())
	if _, err := b.Refresh(ctx, 1); err != nil {
		t.Fatal(err)
	}

	m, err := b.Stage(1, "7", +1)
	if err != nil {
		t.Fatal(err)
	}
	if e := displayed(t, b, "7"); e.Displayed != 4 || !e.Pending {
		t.Errorf("before commit: %+v", e)
	}
	if _, err := b.Commit(ctx, m); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if len(bodies) != 1 {
		t.Fatalf("patches = %d, want 1", len(bodies))
	}
	var body map[string]int64
	if err := json.Unmarshal([]byte(bodies[0]), &body); err != nil || len(body) != 1 || body["quantity"] != 4 {
		t.Errorf("patch body = %s", bodies[0])
	}
	if e := displayed(t, b, "7"); e.Displayed != 4 || e.Pending {
		t.Errorf("after commit: %+v", e)
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	f := &fakeAPI{items: []api.Item{{ID: "1", Quantity: 1}}}
	b := loadedBoard(t, f)

	m, err := b.Stage(1, "1", -1)
	if err != nil || m.Quantity != 0 {
		t.Fatalf("Stage() = %+v, %v", m, err)
	}
	if _, err := b.Stage(1, "1", -1); !errors.Is(err, ErrNoChange) {
		t.Errorf("Stage() below zero error = %v", err)
	}
	if m, err := b.Stage(1, "1", -5); err == nil {
		t.Errorf("Stage(-5) = %+v", m)
	}
	if got := displayed(t, b, "1").Displayed; got != 0 {
		t.Errorf("displayed = %d", got)
	}
}

func TestStageUnknownItem(t *testing.T) {
	b := NewBoard(&fakeAPI{}, logger.Discard())
	if _, err := b.Stage(1, "1", 1); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("before load: %v", err)
	}
	b = loadedBoard(t, &fakeAPI{items: []api.Item{{ID: "1"}}})
	if _, err := b.Stage(1, "2", 1); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("missing id: %v", err)
	}
	if _, err := b.StageSet(1, "1", -1); !errors.Is(err, api.ErrValidation) {
		t.Errorf("negative set: %v", err)
	}
}

func TestStageUsesDisplayedValue(t *testing.T) {
	f := &fakeAPI{items: []api.Item{{ID: "1", Quantity: 3}}}
	b := loadedBoard(t, f)

	m1, _ := b.Stage(1, "1", 1)
	m2, _ := b.Stage(1, "1", 1)
	if m1.Quantity != 4 || m2.Quantity != 5 || m2.From != 4 {
		t.Errorf("m1 = %+v, m2 = %+v", m1, m2)
	}
}

func TestSupersededMutationIsNotSent(t *testing.T) {
	f := &fakeAPI{items: []api.Item{{ID: "1", Quantity: 3}}}
	b := loadedBoard(t, f)
	ctx := context.Background()

	m1, _ := b.Stage(1, "1", 1)
	m2, _ := b.Stage(1, "1", 1)

	if _, err := b.Commit(ctx, m1); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Commit(m1) error = %v", err)
	}
	if _, err := b.Commit(ctx, m2); err != nil {
		t.Errorf("Commit(m2) error = %v", err)
	}
	got := f.sent()
	if len(got) != 1 || got[0].qty != 5 {
		t.Errorf("patches = %+v", got)
	}
	if e := displayed(t, b, "1"); e.Displayed != 5 || e.Pending {
		t.Errorf("entry = %+v", e)
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	f := &fakeAPI{
		items:   []api.Item{{ID: "1", Quantity: 3}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	b := loadedBoard(t, f)
	ctx := context.Background()

	m1, _ := b.Stage(1, "1", 1)
	done := make(chan error, 1)
	go func() {
		_, err := b.Commit(ctx, m1)
		done <- err
	}()
	<-f.started

	m2, _ := b.Stage(1, "1", 1)
	close(f.block)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Commit(m1) error = %v", err)
	}
	if e := displayed(t, b, "1"); e.Displayed != 5 || !e.Pending {
		t.Errorf("after stale response: %+v", e)
	}

	if _, err := b.Commit(ctx, m2); err != nil {
		t.Fatal(err)
	}
	got := f.sent()
	if len(got) != 2 || got[0].qty != 4 || got[1].qty != 5 {
		t.Errorf("patches = %+v", got)
	}
	if e := displayed(t, b, "1"); e.Displayed != 5 || e.Pending {
		t.Errorf("final = %+v", e)
	}
}

func TestFailureKeepsOverride(t *testing.T) {
	f := &fakeAPI{
		items: []api.Item{{ID: "1", Quantity: 3}},
		fail:  &api.Error{Kind: api.KindServer, Status: 500, Detail: "boom"},
	}
	b := loadedBoard(t, f)

	m, _ := b.Stage(1, "1", -1)
	_, err := b.Commit(context.Background(), m)
	if api.Message(err, "x") != "boom" {
		t.Errorf("Commit() error = %v", err)
	}
	if e := displayed(t, b, "1"); e.Displayed != 2 || !e.Pending {
		t.Errorf("entry = %+v", e)
	}
}

func TestRefreshDiscardsOverrides(t *testing.T) {
	f := &fakeAPI{items: []api.Item{{ID: "1", Quantity: 3}, {ID: "2", Quantity: 8}}}
	b := loadedBoard(t, f)
	ctx := context.Background()

	m, _ := b.Stage(1, "1", 5)
	_, _ = b.Stage(1, "2", -1)

	entries, err := b.Refresh(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Pending || e.Displayed != int64(e.Quantity) {
			t.Errorf("entry after refresh = %+v", e)
		}
	}

	// изменение, сделанное до обновления, уже не отправляется
	if _, err := b.Commit(ctx, m); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Commit() error = %v", err)
	}
	if len(f.sent()) != 0 {
		t.Errorf("patches = %+v", f.sent())
	}
}

func TestScopesAreIndependent(t *testing.T) {
	f := &fakeAPI{items: []api.Item{{ID: "1", Quantity: 3}}}
	b := loadedBoard(t, f)
	if _, err := b.Refresh(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	_, _ = b.Stage(1, "1", 1)
	if e, _ := b.Displayed(2, "1"); e.Displayed != 3 {
		t.Errorf("chat 2 sees %d", e.Displayed)
	}

	b.Forget(1)
	if b.Loaded(1) || !b.Loaded(2) {
		t.Errorf("Loaded() = %v, %v", b.Loaded(1), b.Loaded(2))
	}
	if len(b.Snapshot(1)) != 0 {
		t.Error("snapshot kept after Forget")
	}
}

package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/infra/metrics"
)

var (
	ErrUnknownItem = errors.New("item is not on the board")
	ErrNoChange    = errors.New("quantity unchanged")
	// ErrSuperseded изменение перекрыто более новым (или обновлением списка)
	// и не отправлялось, либо его ответ устарел и отброшен.
	ErrSuperseded = errors.New("quantity change superseded")
)

// API часть клиента, нужная доске.
type API interface {
	ListItems(ctx context.Context, scope int64) ([]api.Item, error)
	PatchQuantity(ctx context.Context, scope int64, id api.ID, qty int64) (*api.Item, error)
}

// Entry позиция в том виде, в каком её видит пользователь.
type Entry struct {
	api.Item
	Displayed int64
	// Pending показано локальное значение, не подтверждённое сервером
	Pending bool
}

// Mutation одно локальное изменение количества, ожидающее отправки.
type Mutation struct {
	ChatID   int64
	ItemID   api.ID
	From     int64
	Quantity int64

	seq   uint64
	epoch uint64
}

type view struct {
	items     []api.Item
	overrides map[api.ID]int64
	seq       map[api.ID]uint64
	epoch     uint64
	loaded    bool
}

type lockKey struct {
	chatID int64
	id     api.ID
}

// Board хранит по каждому чату последний загруженный список и поверх него
// локальные значения количества. Отправки по одной позиции идут строго
// по очереди, устаревшие пропускаются.
type Board struct {
	api API
	log *slog.Logger

	mu    sync.Mutex
	views map[int64]*view
	locks map[lockKey]*sync.Mutex
}

func NewBoard(a API, log *slog.Logger) *Board {
	return &Board{
		api:   a,
		log:   log,
		views: map[int64]*view{},
		locks: map[lockKey]*sync.Mutex{},
	}
}

// Refresh перезагружает список с сервера и сбрасывает все локальные значения.
func (b *Board) Refresh(ctx context.Context, chatID int64) ([]Entry, error) {
	items, err := b.api.ListItems(ctx, chatID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.viewLocked(chatID)
	v.items = items
	v.overrides = map[api.ID]int64{}
	v.epoch++
	v.loaded = true
	return v.snapshot(), nil
}

// Loaded был ли для чата хотя бы один успешный Refresh.
func (b *Board) Loaded(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[chatID]
	return ok && v.loaded
}

func (b *Board) Snapshot(chatID int64) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[chatID]
	if !ok {
		return nil
	}
	return v.snapshot()
}

func (b *Board) Displayed(chatID int64, id api.ID) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[chatID]
	if !ok {
		return Entry{}, false
	}
	i := v.index(id)
	if i < 0 {
		return Entry{}, false
	}
	return v.entry(i), true
}

// Forget удаляет состояние чата (выход из аккаунта).
func (b *Board) Forget(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.views[chatID]; ok {
		// эпоха сохраняется, чтобы ответы старых запросов не применились
		b.views[chatID] = &view{
			overrides: map[api.ID]int64{},
			seq:       v.seq,
			epoch:     v.epoch + 1,
		}
	}
	for k := range b.locks {
		if k.chatID == chatID {
			delete(b.locks, k)
		}
	}
}

// Stage меняет отображаемое количество на delta (не ниже нуля).
// Новое значение видно сразу, на сервер его отправляет Commit.
func (b *Board) Stage(chatID int64, id api.ID, delta int64) (*Mutation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, i, err := b.findLocked(chatID, id)
	if err != nil {
		return nil, err
	}
	cur := v.entry(i).Displayed
	return v.stage(chatID, id, cur, max(cur+delta, 0))
}

// StageSet задаёт отображаемое количество целиком.
func (b *Board) StageSet(chatID int64, id api.ID, qty int64) (*Mutation, error) {
	if qty < 0 {
		return nil, api.Validationf("Количество не может быть отрицательным.")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, i, err := b.findLocked(chatID, id)
	if err != nil {
		return nil, err
	}
	return v.stage(chatID, id, v.entry(i).Displayed, qty)
}

// Commit отправляет изменение. Если за время ожидания очереди появилось
// более новое изменение этой позиции, запрос не отправляется.
// При ошибке локальное значение остаётся до следующего Refresh.
func (b *Board) Commit(ctx context.Context, m *Mutation) (*api.Item, error) {
	l := b.itemLock(m.ChatID, m.ItemID)
	l.Lock()
	defer l.Unlock()

	if !b.current(m) {
		metrics.QuantityUpdates.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	item, err := b.api.PatchQuantity(ctx, m.ChatID, m.ItemID, m.Quantity)
	if err != nil {
		metrics.QuantityUpdates.WithLabelValues("failed").Inc()
		b.log.Warn("quantity update failed",
			"chat_id", m.ChatID, "item_id", m.ItemID, "quantity", m.Quantity, "err", err)
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[m.ChatID]
	if !ok || v.epoch != m.epoch || v.seq[m.ItemID] != m.seq {
		metrics.QuantityUpdates.WithLabelValues("superseded").Inc()
		b.log.Debug("stale quantity response dropped", "chat_id", m.ChatID, "item_id", m.ItemID)
		return item, ErrSuperseded
	}
	if i := v.index(m.ItemID); i >= 0 {
		if item != nil {
			v.items[i] = *item
		} else {
			v.items[i].Quantity = api.Quantity(m.Quantity)
		}
		delete(v.overrides, m.ItemID)
	}
	metrics.QuantityUpdates.WithLabelValues("ok").Inc()
	return item, nil
}

func (b *Board) current(m *Mutation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.views[m.ChatID]
	return ok && v.epoch == m.epoch && v.seq[m.ItemID] == m.seq
}

func (b *Board) itemLock(chatID int64, id api.ID) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := lockKey{chatID: chatID, id: id}
	l, ok := b.locks[k]
	if !ok {
		l = &sync.Mutex{}
		b.locks[k] = l
	}
	return l
}

func (b *Board) viewLocked(chatID int64) *view {
	v, ok := b.views[chatID]
	if !ok {
		v = &view{overrides: map[api.ID]int64{}, seq: map[api.ID]uint64{}}
		b.views[chatID] = v
	}
	return v
}

func (b *Board) findLocked(chatID int64, id api.ID) (*view, int, error) {
	v, ok := b.views[chatID]
	if !ok {
		return nil, -1, ErrUnknownItem
	}
	i := v.index(id)
	if i < 0 {
		return nil, -1, ErrUnknownItem
	}
	return v, i, nil
}

func (v *view) stage(chatID int64, id api.ID, from, to int64) (*Mutation, error) {
	if from == to {
		return nil, ErrNoChange
	}
	v.seq[id]++
	v.overrides[id] = to
	return &Mutation{
		ChatID:   chatID,
		ItemID:   id,
		From:     from,
		Quantity: to,
		seq:      v.seq[id],
		epoch:    v.epoch,
	}, nil
}

func (v *view) index(id api.ID) int {
	for i := range v.items {
		if v.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *view) entry(i int) Entry {
	it := v.items[i]
	e := Entry{Item: it, Displayed: int64(it.Quantity)}
	if q, ok := v.overrides[it.ID]; ok {
		e.Displayed, e.Pending = q, true
	}
	return e
}

func (v *view) snapshot() []Entry {
	out := make([]Entry, len(v.items))
	for i := range v.items {
		out[i] = v.entry(i)
	}
	return out
}

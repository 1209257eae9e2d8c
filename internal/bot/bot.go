package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/auth"
	"github.com/Spok95/inventory-bot/internal/dialog"
	"github.com/Spok95/inventory-bot/internal/inventory"
)

// telegram методы *tgbotapi.BotAPI, которыми пользуется бот.
type telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api    telegram
	log    *slog.Logger
	states dialog.Store
	auth   *auth.Controller
	client *api.Client
	board  *inventory.Board
}

func New(tg telegram, log *slog.Logger, states dialog.Store,
	authCtl *auth.Controller, client *api.Client, board *inventory.Board) *Bot {

	b := &Bot{
		api: tg, log: log, states: states,
		auth: authCtl, client: client, board: board,
	}
	authCtl.OnChange(b.onAuthChange)
	return b
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case upd := <-updates:
			b.handle(ctx, upd)
		}
	}
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		b.onMessage(ctx, upd)
	} else if upd.CallbackQuery != nil {
		b.onCallback(ctx, upd)
	}
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	st, ok := b.guard(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, st)
		return
	}
	b.handleStateMessage(ctx, msg, st)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	cb := upd.CallbackQuery
	if cb.Message == nil {
		_ = b.answerCallback(cb, "", false)
		return
	}
	st, ok := b.guard(ctx, cb.Message.Chat.ID)
	if !ok {
		_ = b.answerCallback(cb, "", false)
		return
	}
	b.handleCallback(ctx, cb, st)
}

// guard определяет состояние авторизации чата и, если текущий экран
// ему не соответствует, сразу переводит чат на нужный экран.
// false апдейт поглощён переходом.
func (b *Bot) guard(ctx context.Context, chatID int64) (*dialog.Item, bool) {
	if _, err := b.auth.Start(ctx, chatID); err != nil {
		b.log.Error("auth start failed", "chat_id", chatID, "err", err)
	}
	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.Error("dialog state read failed", "chat_id", chatID, "err", err)
		st = &dialog.Item{ChatID: chatID, State: dialog.StateIdle, Payload: dialog.Payload{}}
	}
	if target, redirect := auth.Route(b.auth.State(chatID), st.State); redirect {
		b.enter(ctx, chatID, target)
		return nil, false
	}
	return st, true
}

// onAuthChange вход, выход или отказ сервера в токене.
// Первичное определение состояния обрабатывает guard.
func (b *Bot) onAuthChange(ctx context.Context, chatID int64, from, to auth.State) {
	if from == auth.Unknown || from == auth.Loading {
		return
	}
	if to == auth.Unauthenticated {
		b.board.Forget(chatID)
	}
	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		st = &dialog.Item{State: dialog.StateIdle}
	}
	if target, redirect := auth.Route(to, st.State); redirect {
		if to == auth.Unauthenticated && from == auth.Authenticated {
			b.removeReplyKeyboard(chatID, "Сессия завершена. Войдите снова.")
		}
		b.enter(ctx, chatID, target)
	}
}

// enter открывает корневой экран группы новым сообщением.
// Состояние записывается до отрисовки: если экран не откроется
// (сеть, отказ в токене), чат всё равно уже в нужной группе.
func (b *Bot) enter(ctx context.Context, chatID int64, target dialog.State) {
	b.setState(ctx, chatID, target, dialog.Payload{})
	switch target {
	case dialog.StateItems:
		b.openItems(ctx, chatID)
	default:
		b.showWelcome(chatID, nil)
	}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
	"github.com/Spok95/inventory-bot/internal/inventory"
)

// openItems вход на главный экран: нижняя панель и свежий список.
func (b *Bot) openItems(ctx context.Context, chatID int64) {
	m := tgbotapi.NewMessage(chatID, "Вы вошли как "+b.auth.User(chatID).DisplayName()+".")
	m.ReplyMarkup = mainReplyKeyboard()
	b.send(m)
	b.refreshItems(ctx, chatID, nil, 0)
}

// refreshItems перезагружает список с сервера, локальные значения сбрасываются.
func (b *Bot) refreshItems(ctx context.Context, chatID int64, editMsgID *int, page int) {
	entries, err := b.board.Refresh(ctx, chatID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return
		}
		b.log.Warn("items load failed", "chat_id", chatID, "err", err)
		kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Повторить", "items:refresh"),
		))
		mid := b.sendOrEdit(chatID, editMsgID, api.Message(err, "Не удалось загрузить товары."), kb)
		b.saveLastStep(ctx, chatID, dialog.StateItems, dialog.Payload{}, mid)
		return
	}
	b.showItemsPage(ctx, chatID, editMsgID, entries, page)
}

func (b *Bot) showItemsPage(ctx context.Context, chatID int64, editMsgID *int, entries []inventory.Entry, page int) {
	from, _, _ := pageBounds(len(entries), page)
	page = from / itemsPerPage
	mid := b.sendOrEdit(chatID, editMsgID, itemsText(entries), itemsKeyboard(entries, page))
	b.saveLastStep(ctx, chatID, dialog.StateItems, dialog.Payload{"page": float64(page)}, mid)
}

// showItems список из памяти, без запроса (возврат из карточки, листание).
func (b *Bot) showItems(ctx context.Context, chatID int64, editMsgID *int, page int) {
	if !b.board.Loaded(chatID) {
		b.refreshItems(ctx, chatID, editMsgID, page)
		return
	}
	b.showItemsPage(ctx, chatID, editMsgID, b.board.Snapshot(chatID), page)
}

func itemsText(entries []inventory.Entry) string {
	if len(entries) == 0 {
		return "Товаров пока нет. Нажмите «➕ Добавить», чтобы создать первый."
	}
	return fmt.Sprintf("Товары (%d). Выберите позицию:", len(entries))
}

func itemDetailText(e inventory.Entry, imageURL string) string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	if e.Description != "" {
		sb.WriteString("\n" + e.Description)
	}
	if c := e.CategoryName(); c != "" {
		sb.WriteString("\nКатегория: " + c)
	}
	fmt.Fprintf(&sb, "\nКоличество: %d", e.Displayed)
	if sym := e.UnitSymbol(); sym != "" {
		sb.WriteString(" " + sym)
	}
	if e.Pending {
		sb.WriteString(" ⏳")
	}
	if imageURL != "" {
		sb.WriteString("\nФото: " + imageURL)
	}
	return sb.String()
}

func (b *Bot) itemDetail(e inventory.Entry) (string, tgbotapi.InlineKeyboardMarkup) {
	return itemDetailText(e, b.client.ResolveURL(e.ImagePath())), itemDetailKeyboard(e.ID)
}

func (b *Bot) showItemDetail(ctx context.Context, chatID int64, editMsgID *int, id api.ID, page int) {
	e, ok := b.board.Displayed(chatID, id)
	if !ok {
		b.sendText(chatID, "Товар не найден. Обновите список.")
		b.showItems(ctx, chatID, editMsgID, page)
		return
	}
	text, kb := b.itemDetail(e)
	mid := b.sendOrEdit(chatID, editMsgID, text, kb)
	b.saveLastStep(ctx, chatID, dialog.StateItemDetail,
		dialog.Payload{"item_id": id.String(), "page": float64(page)}, mid)
}

// changeQty показывает новое количество сразу, а запрос уходит в фоне.
func (b *Bot) changeQty(ctx context.Context, cb *tgbotapi.CallbackQuery, st *dialog.Item, id api.ID, delta int64) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	page, _ := dialog.GetInt64(st.Payload, "page")

	m, err := b.board.Stage(chatID, id, delta)
	switch {
	case errors.Is(err, inventory.ErrNoChange):
		_ = b.answerCallback(cb, "Количество не может быть меньше нуля", false)
		return
	case err != nil:
		_ = b.answerCallback(cb, "Товар не найден, обновите список", false)
		b.showItems(ctx, chatID, &msgID, int(page))
		return
	}
	_ = b.answerCallback(cb, "", false)
	b.showItemDetail(ctx, chatID, &msgID, id, int(page))

	go b.commitQty(ctx, msgID, m)
}

func (b *Bot) commitQty(ctx context.Context, msgID int, m *inventory.Mutation) {
	_, err := b.board.Commit(ctx, m)
	if errors.Is(err, inventory.ErrSuperseded) {
		return
	}
	if err != nil {
		b.reportError(m.ChatID, err, "Не удалось сохранить количество.")
		return
	}
	// Только правка текста карточки, если пользователь всё ещё на ней.
	// Состояние диалога здесь не пишется: им владеет цикл апдейтов.
	st, err := b.states.Get(ctx, m.ChatID)
	if err != nil || st.State != dialog.StateItemDetail {
		return
	}
	if cur, _ := dialog.GetString(st.Payload, "item_id"); cur != m.ItemID.String() {
		return
	}
	if mid, _ := dialog.GetInt64(st.Payload, "last_mid"); int(mid) != msgID {
		return
	}
	e, ok := b.board.Displayed(m.ChatID, m.ItemID)
	if !ok {
		return
	}
	text, kb := b.itemDetail(e)
	b.send(tgbotapi.NewEditMessageTextAndMarkup(m.ChatID, msgID, text, kb))
}

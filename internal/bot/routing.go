package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
)

const helpText = "Команды:\n" +
	"/start — начать работу\n" +
	"/items — список товаров\n" +
	"/add — добавить товар\n" +
	"/profile — профиль\n" +
	"/export — выгрузить остатки в Excel\n" +
	"/logout — выйти из аккаунта\n" +
	"/help — помощь"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID

	if msg.Command() == "help" {
		b.sendText(chatID, helpText)
		return
	}

	if st.State.Group() == dialog.GroupOnboarding {
		switch msg.Command() {
		case "start":
			b.setState(ctx, chatID, dialog.StateLogin, dialog.Payload{})
			b.showWelcome(chatID, nil)
		default:
			b.sendText(chatID, "Сначала войдите в аккаунт.")
		}
		return
	}

	b.clearPrevStep(ctx, chatID)
	switch msg.Command() {
	case "start":
		m := tgbotapi.NewMessage(chatID, "С возвращением, "+b.auth.User(chatID).DisplayName()+"!")
		m.ReplyMarkup = mainReplyKeyboard()
		b.send(m)
		b.showItems(ctx, chatID, nil, 0)
	case "items":
		b.refreshItems(ctx, chatID, nil, 0)
	case "add":
		b.startAddItem(ctx, chatID, nil)
	case "profile":
		b.showProfile(ctx, chatID, nil)
	case "export":
		b.exportItemsExcel(ctx, chatID)
	case "logout":
		b.logout(ctx, chatID, nil)
	default:
		b.sendText(chatID, "Не знаю такую команду. Наберите /help")
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID

	if st.State.Group() == dialog.GroupOnboarding {
		b.handleOnboardingMessage(ctx, msg, st)
		return
	}

	// Нижняя панель
	switch msg.Text {
	case btnItems:
		b.clearPrevStep(ctx, chatID)
		b.refreshItems(ctx, chatID, nil, 0)
		return
	case btnAdd:
		b.clearPrevStep(ctx, chatID)
		b.startAddItem(ctx, chatID, nil)
		return
	case btnProfile:
		b.clearPrevStep(ctx, chatID)
		b.showProfile(ctx, chatID, nil)
		return
	}

	switch st.State {
	case dialog.StateAddName, dialog.StateAddDescription, dialog.StateAddQty,
		dialog.StateAddCategory, dialog.StateAddUnit, dialog.StateAddImage, dialog.StateAddConfirm:
		b.handleAddMessage(ctx, msg, st)
	case dialog.StateImportFile:
		b.handleImportFile(ctx, msg)
	default:
		b.sendText(chatID, "Воспользуйтесь кнопками меню или наберите /help")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, st *dialog.Item) {
	if st.State.Group() == dialog.GroupOnboarding {
		b.handleOnboardingCallback(ctx, cb, st)
		return
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	page, _ := dialog.GetInt64(st.Payload, "page")

	// Общая навигация
	if data == "nav:cancel" {
		b.editTextAndClear(chatID, msgID, "Операция отменена.")
		_ = b.states.Reset(ctx, chatID)
		_ = b.answerCallback(cb, "Отменено", false)
		b.showItems(ctx, chatID, nil, 0)
		return
	}
	if data == "nav:back" {
		switch st.State {
		case dialog.StateAddName, dialog.StateAddDescription, dialog.StateAddQty,
			dialog.StateAddCategory, dialog.StateAddUnit, dialog.StateAddImage, dialog.StateAddConfirm:
			b.addBack(ctx, chatID, msgID, st)
		default:
			b.showItems(ctx, chatID, &msgID, int(page))
		}
		_ = b.answerCallback(cb, "", false)
		return
	}

	switch {
	case data == "items:refresh":
		b.refreshItems(ctx, chatID, &msgID, int(page))
		_ = b.answerCallback(cb, "Обновлено", false)
	case strings.HasPrefix(data, "items:page:"):
		n, _ := strconv.Atoi(strings.TrimPrefix(data, "items:page:"))
		b.showItems(ctx, chatID, &msgID, n)
		_ = b.answerCallback(cb, "", false)
	case data == "items:add":
		b.startAddItem(ctx, chatID, &msgID)
		_ = b.answerCallback(cb, "", false)
	case data == "items:export":
		_ = b.answerCallback(cb, "Формирую файл…", false)
		b.exportItemsExcel(ctx, chatID)
	case data == "items:import":
		b.askImportFile(ctx, chatID, &msgID)
		_ = b.answerCallback(cb, "", false)

	case strings.HasPrefix(data, "item:open:"):
		b.showItemDetail(ctx, chatID, &msgID, api.ID(strings.TrimPrefix(data, "item:open:")), int(page))
		_ = b.answerCallback(cb, "", false)
	case strings.HasPrefix(data, "item:inc:"):
		b.changeQty(ctx, cb, st, api.ID(strings.TrimPrefix(data, "item:inc:")), +1)
	case strings.HasPrefix(data, "item:dec:"):
		b.changeQty(ctx, cb, st, api.ID(strings.TrimPrefix(data, "item:dec:")), -1)

	case strings.HasPrefix(data, "add:"):
		b.handleAddCallback(ctx, cb, st)

	case data == "prof:refresh":
		_ = b.answerCallback(cb, "", false)
		b.showProfile(ctx, chatID, &msgID)
	case data == "prof:logout":
		_ = b.answerCallback(cb, "", false)
		b.logout(ctx, chatID, &msgID)

	case strings.HasPrefix(data, "auth:"):
		_ = b.answerCallback(cb, "Вы уже вошли", false)
	default:
		_ = b.answerCallback(cb, "Неизвестная команда", false)
	}
}

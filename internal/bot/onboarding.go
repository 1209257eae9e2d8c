package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
)

const welcomeText = "Добро пожаловать в учёт инвентаря!\nВойдите в аккаунт или зарегистрируйтесь."

func (b *Bot) showWelcome(chatID int64, editMsgID *int) {
	b.sendOrEdit(chatID, editMsgID, welcomeText, welcomeKeyboard())
}

// removeReplyKeyboard убирает нижнюю панель главного экрана.
func (b *Bot) removeReplyKeyboard(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(m)
}

// askStep вопрос очередного шага формы с кнопками навигации.
func (b *Bot) askStep(ctx context.Context, chatID int64, editMsgID *int, state dialog.State, payload dialog.Payload, text string, kb tgbotapi.InlineKeyboardMarkup) {
	mid := b.sendOrEdit(chatID, editMsgID, text, kb)
	b.saveLastStep(ctx, chatID, state, payload, mid)
}

// deleteSecret удаляет сообщение с паролем из истории чата.
func (b *Bot) deleteSecret(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete password message failed", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) handleOnboardingMessage(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	p := st.Payload
	if p == nil {
		p = dialog.Payload{}
	}

	switch st.State {
	case dialog.StateLogin:
		b.showWelcome(chatID, nil)

	case dialog.StateLoginEmail:
		b.clearPrevStep(ctx, chatID)
		if text == "" {
			b.askStep(ctx, chatID, nil, st.State, p, "Email не может быть пустым. Введите email:", navKeyboard(true, false))
			return
		}
		p["email"] = text
		b.askStep(ctx, chatID, nil, dialog.StateLoginPassword, p, "Введите пароль:", navKeyboard(true, false))

	case dialog.StateLoginPassword:
		b.clearPrevStep(ctx, chatID)
		b.deleteSecret(chatID, msg.MessageID)
		email, _ := dialog.GetString(p, "email")
		b.login(ctx, chatID, p, api.Credentials{Email: email, Password: msg.Text})

	case dialog.StateRegName:
		b.clearPrevStep(ctx, chatID)
		if text == "" {
			b.askStep(ctx, chatID, nil, st.State, p, "Имя не может быть пустым. Введите имя:", navKeyboard(true, false))
			return
		}
		p["name"] = text
		b.askStep(ctx, chatID, nil, dialog.StateRegEmail, p, "Введите email:", navKeyboard(true, false))

	case dialog.StateRegEmail:
		b.clearPrevStep(ctx, chatID)
		if !strings.Contains(text, "@") {
			b.askStep(ctx, chatID, nil, st.State, p, "Некорректный email. Введите email ещё раз:", navKeyboard(true, false))
			return
		}
		p["email"] = text
		b.askStep(ctx, chatID, nil, dialog.StateRegPassword, p, "Придумайте пароль:", navKeyboard(true, false))

	case dialog.StateRegPassword:
		b.clearPrevStep(ctx, chatID)
		b.deleteSecret(chatID, msg.MessageID)
		b.register(ctx, chatID, p, msg.Text)
	}
}

// login при успехе ничего не рисует: переход на товары делает onAuthChange.
func (b *Bot) login(ctx context.Context, chatID int64, p dialog.Payload, creds api.Credentials) {
	u, err := b.auth.Login(ctx, chatID, creds)
	if err != nil {
		b.sendText(chatID, api.Message(err, "Не удалось войти. Попробуйте ещё раз."))
		b.askStep(ctx, chatID, nil, dialog.StateLoginPassword, p, "Введите пароль:", navKeyboard(true, false))
		return
	}
	b.log.Info("user logged in", "chat_id", chatID, "user_id", u.ID)
}

func (b *Bot) register(ctx context.Context, chatID int64, p dialog.Payload, password string) {
	name, _ := dialog.GetString(p, "name")
	email, _ := dialog.GetString(p, "email")

	tokens, err := b.auth.Register(ctx, chatID, api.Registration{Name: name, Email: email, Password: password})
	if err != nil {
		b.sendText(chatID, api.Message(err, "Ошибка регистрации. Попробуйте ещё раз."))
		b.askStep(ctx, chatID, nil, dialog.StateRegPassword, p, "Придумайте пароль:", navKeyboard(true, false))
		return
	}
	b.sendText(chatID, "Аккаунт создан.")

	if tokens.Complete() {
		if _, err := b.auth.Adopt(ctx, chatID, tokens); err == nil {
			return
		}
	} else if _, err := b.auth.Login(ctx, chatID, api.Credentials{Email: email, Password: password}); err == nil {
		return
	}

	// сервер создал аккаунт, но войти сразу не удалось
	b.askStep(ctx, chatID, nil, dialog.StateLoginEmail, dialog.Payload{},
		"Войдите с новыми данными. Введите email:", navKeyboard(true, false))
}

func (b *Bot) onboardingBack(ctx context.Context, chatID int64, msgID int, st *dialog.Item) {
	p := st.Payload
	switch st.State {
	case dialog.StateLoginPassword:
		b.askStep(ctx, chatID, &msgID, dialog.StateLoginEmail, p, "Введите email:", navKeyboard(true, false))
	case dialog.StateRegEmail:
		b.askStep(ctx, chatID, &msgID, dialog.StateRegName, p, "Введите имя:", navKeyboard(true, false))
	case dialog.StateRegPassword:
		b.askStep(ctx, chatID, &msgID, dialog.StateRegEmail, p, "Введите email:", navKeyboard(true, false))
	default:
		b.setState(ctx, chatID, dialog.StateLogin, dialog.Payload{})
		b.showWelcome(chatID, &msgID)
	}
}

func (b *Bot) handleOnboardingCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, st *dialog.Item) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID

	switch cb.Data {
	case "auth:login":
		b.askStep(ctx, chatID, &msgID, dialog.StateLoginEmail, dialog.Payload{}, "Введите email:", navKeyboard(true, false))
	case "auth:register":
		b.askStep(ctx, chatID, &msgID, dialog.StateRegName, dialog.Payload{}, "Введите имя:", navKeyboard(true, false))
	case "nav:back", "nav:cancel":
		b.onboardingBack(ctx, chatID, msgID, st)
	default:
		_ = b.answerCallback(cb, "Сначала войдите в аккаунт", false)
		return
	}
	_ = b.answerCallback(cb, "", false)
}

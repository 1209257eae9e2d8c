package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
)

func profileText(u *api.User, exp time.Time, hasExp bool, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Профиль\n")
	sb.WriteString("Имя: " + u.DisplayName() + "\n")
	if u != nil && u.Email != "" {
		sb.WriteString("Email: " + u.Email + "\n")
	}
	if hasExp {
		if exp.After(now) {
			fmt.Fprintf(&sb, "Токен действует до %s", exp.Local().Format("02.01.2006 15:04"))
		} else {
			sb.WriteString("Токен истёк, сервер запросит вход заново")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// showProfile сначала показывает профиль из кеша сессии, потом обновляет его с сервера.
func (b *Bot) showProfile(ctx context.Context, chatID int64, editMsgID *int) {
	exp, hasExp := b.auth.TokenExpiry(ctx, chatID)
	cached := profileText(b.auth.User(chatID), exp, hasExp, time.Now())
	mid := b.sendOrEdit(chatID, editMsgID, cached, profileKeyboard())
	b.saveLastStep(ctx, chatID, dialog.StateProfile, dialog.Payload{}, mid)

	u, err := b.auth.RefreshProfile(ctx, chatID)
	if err != nil {
		b.log.Info("profile refresh failed", "chat_id", chatID, "err", err)
		return
	}
	if mid == 0 {
		return
	}
	if fresh := profileText(u, exp, hasExp, time.Now()); fresh != cached {
		b.sendOrEdit(chatID, &mid, fresh, profileKeyboard())
	}
}

func (b *Bot) logout(ctx context.Context, chatID int64, editMsgID *int) {
	// черновики прошлой сессии удаляются; экран входа выставляется
	// заранее, чтобы переход не дублировал приветствие
	if err := b.states.Reset(ctx, chatID); err != nil {
		b.log.Error("dialog state reset failed", "chat_id", chatID, "err", err)
	}
	b.setState(ctx, chatID, dialog.StateLogin, dialog.Payload{})
	if editMsgID != nil {
		b.editTextAndClear(chatID, *editMsgID, "Выход из аккаунта…")
	}
	if err := b.auth.Logout(ctx, chatID); err != nil {
		b.log.Error("logout failed", "chat_id", chatID, "err", err)
	}
	b.removeReplyKeyboard(chatID, "Вы вышли из аккаунта.")
	b.showWelcome(chatID, nil)
}

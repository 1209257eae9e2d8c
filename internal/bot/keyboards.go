package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/inventory"
)

const (
	itemsPerPage = 8
	itemsPerRow  = 2

	btnItems   = "📦 Товары"
	btnAdd     = "➕ Добавить товар"
	btnProfile = "👤 Профиль"
)

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func welcomeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Войти", "auth:login"),
			tgbotapi.NewInlineKeyboardButtonData("📝 Регистрация", "auth:register"),
		),
	)
}

// mainReplyKeyboard Нижняя панель после входа
func mainReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton(btnItems), tgbotapi.NewKeyboardButton(btnAdd)},
			{tgbotapi.NewKeyboardButton(btnProfile)},
		},
	}
}

func itemLabel(e inventory.Entry) string {
	label := fmt.Sprintf("%s: %d", e.Name, e.Displayed)
	if sym := e.UnitSymbol(); sym != "" {
		label += " " + sym
	}
	if e.Pending {
		label += " ⏳"
	}
	return label
}

// pageBounds границы страницы page (с нуля) и число страниц.
func pageBounds(total, page int) (from, to, pages int) {
	pages = (total + itemsPerPage - 1) / itemsPerPage
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	from = page * itemsPerPage
	to = min(from+itemsPerPage, total)
	return from, to, pages
}

// itemsKeyboard сетка товаров в две колонки с листанием.
func itemsKeyboard(entries []inventory.Entry, page int) tgbotapi.InlineKeyboardMarkup {
	from, to, pages := pageBounds(len(entries), page)
	page = from / itemsPerPage

	rows := [][]tgbotapi.InlineKeyboardButton{}
	var row []tgbotapi.InlineKeyboardButton
	for _, e := range entries[from:to] {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(itemLabel(e), "item:open:"+e.ID.String()))
		if len(row) == itemsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if pages > 1 {
		nav := []tgbotapi.InlineKeyboardButton{}
		if page > 0 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️", fmt.Sprintf("items:page:%d", page-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", page+1, pages), fmt.Sprintf("items:page:%d", page)))
		if page < pages-1 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("▶️", fmt.Sprintf("items:page:%d", page+1)))
		}
		rows = append(rows, nav)
	}

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", "items:refresh"),
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить", "items:add"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Выгрузить", "items:export"),
			tgbotapi.NewInlineKeyboardButtonData("⬆️ Загрузить", "items:import"),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func itemDetailKeyboard(id api.ID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖", "item:dec:"+id.String()),
			tgbotapi.NewInlineKeyboardButtonData("➕", "item:inc:"+id.String()),
		),
		navKeyboard(true, false).InlineKeyboard[0],
	)
}

// pickKeyboard выбор категории или единицы, по одной кнопке в строке.
func pickKeyboard(prefix string, options [][2]string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, o := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(o[1], prefix+o[0]),
		))
	}
	rows = append(rows, navKeyboard(true, true).InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func skipKeyboard(data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить", data),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	)
}

func addConfirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💾 Сохранить", "add:save"),
		),
		navKeyboard(true, true).InlineKeyboard[0],
	)
}

func profileKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить", "prof:refresh"),
			tgbotapi.NewInlineKeyboardButtonData("🚪 Выйти", "prof:logout"),
		),
		navKeyboard(true, false).InlineKeyboard[0],
	)
}

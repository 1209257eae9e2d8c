package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
	"github.com/Spok95/inventory-bot/internal/inventory"
)

const maxReportedRows = 10

// exportItemsExcel выгружает список с отображаемыми количествами.
func (b *Bot) exportItemsExcel(ctx context.Context, chatID int64) {
	if !b.board.Loaded(chatID) {
		if _, err := b.board.Refresh(ctx, chatID); err != nil {
			b.reportError(chatID, err, "Не удалось загрузить товары.")
			return
		}
	}
	entries := b.board.Snapshot(chatID)
	if len(entries) == 0 {
		b.sendText(chatID, "Выгружать нечего: товаров нет.")
		return
	}
	data, err := inventory.ExportXLSX(entries)
	if err != nil {
		b.log.Error("xlsx export failed", "chat_id", chatID, "err", err)
		b.sendText(chatID, "Ошибка формирования файла")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("inventory_%s.xlsx", time.Now().Format("20060102_150405")),
		Bytes: data,
	})
	doc.Caption = "Остатки товаров.\nПри необходимости измените колонку quantity и загрузите файл через «⬆️ Загрузить»."
	b.send(doc)
}

func (b *Bot) askImportFile(ctx context.Context, chatID int64, editMsgID *int) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateImportFile, dialog.Payload{},
		"Отправьте Excel-файл (.xlsx), выгруженный через «⬇️ Выгрузить», с исправленной колонкой quantity.",
		navKeyboard(true, true))
}

type importReport struct {
	updated   int
	unchanged int
	unknown   []string
	failed    []string
	bad       []inventory.RowError
}

func (r importReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Загрузка завершена.\nОбновлено: %d\nБез изменений: %d", r.updated, r.unchanged)
	list := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n%s: %d", title, len(lines))
		for i, l := range lines {
			if i == maxReportedRows {
				sb.WriteString("\n…")
				break
			}
			sb.WriteString("\n  " + l)
		}
	}
	list("Не найдены", r.unknown)
	list("Ошибки сохранения", r.failed)
	bad := make([]string, len(r.bad))
	for i, e := range r.bad {
		bad[i] = e.Error()
	}
	list("Некорректные строки", bad)
	return sb.String()
}

// importQuantities применяет количества из файла через тот же путь,
// что и кнопки ➕/➖. Строки обрабатываются по очереди.
func (b *Bot) importQuantities(ctx context.Context, chatID int64, rows []inventory.QuantityRow) (importReport, error) {
	var rep importReport
	if _, err := b.board.Refresh(ctx, chatID); err != nil {
		return rep, err
	}
	for _, row := range rows {
		m, err := b.board.StageSet(chatID, row.ID, row.Quantity)
		switch {
		case errors.Is(err, inventory.ErrNoChange):
			rep.unchanged++
			continue
		case err != nil:
			rep.unknown = append(rep.unknown, fmt.Sprintf("строка %d: id %s", row.Line, row.ID))
			continue
		}
		if _, err := b.board.Commit(ctx, m); err != nil && !errors.Is(err, inventory.ErrSuperseded) {
			if errors.Is(err, api.ErrUnauthorized) {
				return rep, err
			}
			rep.failed = append(rep.failed, fmt.Sprintf("строка %d: %s", row.Line, api.Message(err, "ошибка сервера")))
			continue
		}
		rep.updated++
	}
	return rep, nil
}

func (b *Bot) handleImportFile(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Document == nil {
		b.sendText(chatID, "Пожалуйста, отправьте Excel-файл (.xlsx), который был выгружен через «⬇️ Выгрузить».")
		return
	}
	b.clearPrevStep(ctx, chatID)

	data, err := b.downloadTelegramFile(msg.Document.FileID)
	if err != nil {
		b.sendText(chatID, "Не удалось скачать файл из Telegram: "+err.Error())
		return
	}
	rows, bad, err := inventory.ParseQuantities(data)
	switch {
	case errors.Is(err, inventory.ErrEmptySheet):
		b.sendText(chatID, "Файл не содержит данных (нет строк с товарами).")
		return
	case err != nil:
		b.sendText(chatID, "Не удалось прочитать Excel-файл: "+err.Error())
		return
	}

	rep, err := b.importQuantities(ctx, chatID, rows)
	if err != nil {
		b.reportError(chatID, err, "Не удалось загрузить товары.")
		return
	}
	rep.bad = bad
	b.log.Info("quantities imported", "chat_id", chatID,
		"updated", rep.updated, "unchanged", rep.unchanged, "failed", len(rep.failed))
	b.sendText(chatID, rep.String())
	b.showItems(ctx, chatID, nil, 0)
}

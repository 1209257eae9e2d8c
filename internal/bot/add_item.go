package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/inventory-bot/internal/api"
	"github.com/Spok95/inventory-bot/internal/dialog"
)

const maxPhotoBytes = 10 << 20

func (b *Bot) startAddItem(ctx context.Context, chatID int64, editMsgID *int) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateAddName, dialog.Payload{},
		"Новый товар.\nВведите название:", navKeyboard(false, true))
}

// referenceData загружает категории и единицы параллельно.
func (b *Bot) referenceData(ctx context.Context, chatID int64) ([]api.Category, []api.Unit, error) {
	var (
		cats  []api.Category
		units []api.Unit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = b.client.ListCategories(gctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		units, err = b.client.ListUnits(gctx, chatID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cats, units, nil
}

// options хранит пары id/название в payload; после JSON это []any из []any.
func options(p dialog.Payload, key string) [][2]string {
	arr, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([][2]string, 0, len(arr))
	for _, e := range arr {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		id, _ := pair[0].(string)
		name, _ := pair[1].(string)
		out = append(out, [2]string{id, name})
	}
	return out
}

func optionName(p dialog.Payload, key, id string) string {
	for _, o := range options(p, key) {
		if o[0] == id {
			return o[1]
		}
	}
	return id
}

func categoryOptions(cats []api.Category) []any {
	out := make([]any, 0, len(cats))
	for _, c := range cats {
		out = append(out, []any{c.ID.String(), c.Name})
	}
	return out
}

func unitOptions(units []api.Unit) []any {
	out := make([]any, 0, len(units))
	for _, u := range units {
		label := u.Name
		if u.Symbol != "" && u.Symbol != u.Name {
			label = fmt.Sprintf("%s (%s)", u.Name, u.Symbol)
		}
		out = append(out, []any{u.ID.String(), label})
	}
	return out
}

// parseQuantity целое число не меньше нуля.
func parseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, api.Validationf("Введите целое число, например 10.")
	}
	if n < 0 {
		return 0, api.Validationf("Количество не может быть отрицательным.")
	}
	return n, nil
}

func (b *Bot) askCategory(ctx context.Context, chatID int64, editMsgID *int, p dialog.Payload) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateAddCategory, p,
		"Выберите категорию:", pickKeyboard("add:cat:", options(p, "categories")))
}

func (b *Bot) askUnit(ctx context.Context, chatID int64, editMsgID *int, p dialog.Payload) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateAddUnit, p,
		"Выберите единицу измерения:", pickKeyboard("add:unit:", options(p, "units")))
}

func (b *Bot) askImage(ctx context.Context, chatID int64, editMsgID *int, p dialog.Payload) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateAddImage, p,
		"Отправьте фото товара или нажмите «Пропустить».", skipKeyboard("add:skipimg"))
}

func addSummary(p dialog.Payload) string {
	name, _ := dialog.GetString(p, "name")
	desc, _ := dialog.GetString(p, "description")
	qty, _ := dialog.GetInt64(p, "quantity")
	cat, _ := dialog.GetString(p, "category_id")
	unit, _ := dialog.GetString(p, "unit_id")
	_, photo := dialog.GetString(p, "photo_file_id")

	var sb strings.Builder
	sb.WriteString("Проверьте данные:\n")
	sb.WriteString("Название: " + name + "\n")
	if desc != "" {
		sb.WriteString("Описание: " + desc + "\n")
	}
	fmt.Fprintf(&sb, "Количество: %d\n", qty)
	sb.WriteString("Категория: " + optionName(p, "categories", cat) + "\n")
	sb.WriteString("Единица: " + optionName(p, "units", unit) + "\n")
	if photo {
		sb.WriteString("Фото: есть")
	} else {
		sb.WriteString("Фото: нет")
	}
	return sb.String()
}

func (b *Bot) askConfirm(ctx context.Context, chatID int64, editMsgID *int, p dialog.Payload) {
	b.askStep(ctx, chatID, editMsgID, dialog.StateAddConfirm, p, addSummary(p), addConfirmKeyboard())
}

func (b *Bot) handleAddMessage(ctx context.Context, msg *tgbotapi.Message, st *dialog.Item) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	p := st.Payload

	switch st.State {
	case dialog.StateAddName:
		b.clearPrevStep(ctx, chatID)
		if text == "" {
			b.askStep(ctx, chatID, nil, st.State, p, "Название не может быть пустым. Введите название:", navKeyboard(false, true))
			return
		}
		p["name"] = text
		b.askStep(ctx, chatID, nil, dialog.StateAddDescription, p,
			"Введите описание или нажмите «Пропустить».", skipKeyboard("add:skipdesc"))

	case dialog.StateAddDescription:
		b.clearPrevStep(ctx, chatID)
		p["description"] = text
		b.askStep(ctx, chatID, nil, dialog.StateAddQty, p, "Введите количество (целое число):", navKeyboard(true, true))

	case dialog.StateAddQty:
		b.clearPrevStep(ctx, chatID)
		n, err := parseQuantity(text)
		if err != nil {
			b.askStep(ctx, chatID, nil, st.State, p, api.Message(err, ""), navKeyboard(true, true))
			return
		}
		p["quantity"] = float64(n)

		cats, units, err := b.referenceData(ctx, chatID)
		if err != nil {
			b.reportError(chatID, err, "Не удалось загрузить категории и единицы.")
			if !errors.Is(err, api.ErrUnauthorized) {
				b.askStep(ctx, chatID, nil, st.State, p, "Введите количество ещё раз, чтобы повторить:", navKeyboard(true, true))
			}
			return
		}
		if len(cats) == 0 || len(units) == 0 {
			b.sendText(chatID, "На сервере нет категорий или единиц измерения. Добавьте их и попробуйте снова.")
			b.showItems(ctx, chatID, nil, 0)
			return
		}
		p["categories"] = categoryOptions(cats)
		p["units"] = unitOptions(units)
		b.askCategory(ctx, chatID, nil, p)

	case dialog.StateAddCategory, dialog.StateAddUnit, dialog.StateAddConfirm:
		b.sendText(chatID, "Воспользуйтесь кнопками под сообщением.")

	case dialog.StateAddImage:
		b.clearPrevStep(ctx, chatID)
		switch {
		case len(msg.Photo) > 0:
			ph := msg.Photo[len(msg.Photo)-1] // самое большое
			p["photo_file_id"] = ph.FileID
			p["photo_name"] = "photo.jpg"
			p["photo_type"] = "image/jpeg"
		case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
			p["photo_file_id"] = msg.Document.FileID
			p["photo_name"] = msg.Document.FileName
			p["photo_type"] = msg.Document.MimeType
		default:
			b.askImage(ctx, chatID, nil, p)
			return
		}
		b.askConfirm(ctx, chatID, nil, p)
	}
}

// newItemFromPayload собирает форму; фото скачивается отдельно.
func newItemFromPayload(p dialog.Payload) api.NewItem {
	name, _ := dialog.GetString(p, "name")
	desc, _ := dialog.GetString(p, "description")
	qty, _ := dialog.GetInt64(p, "quantity")
	cat, _ := dialog.GetString(p, "category_id")
	unit, _ := dialog.GetString(p, "unit_id")
	return api.NewItem{
		Name:        name,
		Description: desc,
		Quantity:    qty,
		CategoryID:  api.ID(cat),
		UnitID:      api.ID(unit),
	}
}

func (b *Bot) saveNewItem(ctx context.Context, chatID int64, msgID int, p dialog.Payload) {
	n := newItemFromPayload(p)
	if err := n.Validate(); err != nil {
		b.sendText(chatID, api.Message(err, ""))
		b.askConfirm(ctx, chatID, nil, p)
		return
	}
	if fileID, ok := dialog.GetString(p, "photo_file_id"); ok {
		data, err := b.downloadTelegramFile(fileID)
		if err != nil {
			b.log.Warn("photo download failed", "chat_id", chatID, "err", err)
			b.sendText(chatID, "Не удалось скачать фото из Telegram. Отправьте его ещё раз или пропустите.")
			b.askImage(ctx, chatID, nil, p)
			return
		}
		if len(data) > maxPhotoBytes {
			b.sendText(chatID, "Фото слишком большое (больше 10 МБ).")
			b.askImage(ctx, chatID, nil, p)
			return
		}
		name, _ := dialog.GetString(p, "photo_name")
		ct, _ := dialog.GetString(p, "photo_type")
		n.Image = &api.Upload{Name: name, ContentType: ct, Data: data}
	}

	b.editTextAndClear(chatID, msgID, "Сохраняю…")
	it, err := b.client.CreateItem(ctx, chatID, n)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return
		}
		b.reportError(chatID, err, "Не удалось сохранить товар.")
		b.askConfirm(ctx, chatID, nil, p)
		return
	}
	title := n.Name
	if it != nil && it.Name != "" {
		title = it.Name
	}
	b.log.Info("item created", "chat_id", chatID, "name", title)
	b.editTextAndClear(chatID, msgID, fmt.Sprintf("Товар «%s» добавлен.", title))
	b.refreshItems(ctx, chatID, nil, 0)
}

func (b *Bot) addBack(ctx context.Context, chatID int64, msgID int, st *dialog.Item) {
	p := st.Payload
	switch st.State {
	case dialog.StateAddDescription:
		b.askStep(ctx, chatID, &msgID, dialog.StateAddName, p, "Введите название:", navKeyboard(false, true))
	case dialog.StateAddQty:
		b.askStep(ctx, chatID, &msgID, dialog.StateAddDescription, p,
			"Введите описание или нажмите «Пропустить».", skipKeyboard("add:skipdesc"))
	case dialog.StateAddCategory:
		b.askStep(ctx, chatID, &msgID, dialog.StateAddQty, p, "Введите количество (целое число):", navKeyboard(true, true))
	case dialog.StateAddUnit:
		b.askCategory(ctx, chatID, &msgID, p)
	case dialog.StateAddImage:
		b.askUnit(ctx, chatID, &msgID, p)
	case dialog.StateAddConfirm:
		b.askImage(ctx, chatID, &msgID, p)
	default:
		b.showItems(ctx, chatID, &msgID, 0)
	}
}

func (b *Bot) handleAddCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, st *dialog.Item) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	data := cb.Data
	p := st.Payload

	switch {
	case data == "add:skipdesc" && st.State == dialog.StateAddDescription:
		p["description"] = ""
		b.askStep(ctx, chatID, &msgID, dialog.StateAddQty, p, "Введите количество (целое число):", navKeyboard(true, true))
	case strings.HasPrefix(data, "add:cat:") && st.State == dialog.StateAddCategory:
		p["category_id"] = strings.TrimPrefix(data, "add:cat:")
		b.askUnit(ctx, chatID, &msgID, p)
	case strings.HasPrefix(data, "add:unit:") && st.State == dialog.StateAddUnit:
		p["unit_id"] = strings.TrimPrefix(data, "add:unit:")
		b.askImage(ctx, chatID, &msgID, p)
	case data == "add:skipimg" && st.State == dialog.StateAddImage:
		delete(p, "photo_file_id")
		b.askConfirm(ctx, chatID, &msgID, p)
	case data == "add:save" && st.State == dialog.StateAddConfirm:
		_ = b.answerCallback(cb, "", false)
		b.saveNewItem(ctx, chatID, msgID, p)
		return
	default:
		_ = b.answerCallback(cb, "Кнопка устарела", false)
		return
	}
	_ = b.answerCallback(cb, "", false)
}

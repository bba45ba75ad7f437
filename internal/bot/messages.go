package bot

import (
	"fmt"

	"github.com/kalambet/stylebot/internal/reply"
	"github.com/kalambet/stylebot/internal/telegram"
)

// Commands.
const (
	cmdStart       = "/start"
	cmdHelp        = "/help"
	cmdAddWardrobe = "/addwardrobe"
	cmdWardrobe    = "/wardrobe"
	cmdCancel      = "/cancel"
	cmdGetLogs     = "/get_logs"
)

// Callback data carried by inline buttons.
const (
	CallbackCommit = "wardrobe_add"
	CallbackEdit   = "wardrobe_edit"
	CallbackManual = "edit_manual"
	CallbackRetry  = "edit_retry"
)

// Name of the document sent for /get_logs.
const logsFilename = "log.csv"

const (
	msgHelp = "Привет! Я твой AI-стилист 👗\n\n" +
		"Команды:\n" +
		"/start — показать это сообщение\n" +
		"/addwardrobe — добавить вещь в гардероб\n" +
		"/wardrobe — показать гардероб\n" +
		"/cancel — отменить текущее действие\n\n" +
		"(и просто отправляй фото или голосовые — я всё пойму 👗🎤)"

	msgSendPhoto       = "📸 Пришли фото вещи для добавления в гардероб."
	msgNeedAddCommand  = "🤖 Сначала отправь команду `/addwardrobe`."
	msgCancelled       = "👌 Действие отменено."
	msgNoAccess        = "❌ У тебя нет доступа к логам."
	msgItemAdded       = "✅ Вещь добавлена в гардероб!"
	msgNoData          = "⚠️ Данные не найдены, начни сначала."
	msgChooseAction    = "Выбери действие:"
	msgEnterText       = "✍️ Введи новый текст описания:"
	msgCategoryLost    = "⚠️ Категория утеряна. Пожалуйста, начни сначала."
	msgEmptyReply      = "⚠️ Ответ пустой — не удалось распознать изображение."
	msgNoCachedPhoto   = "⚠️ Фото не найдено. Отправь /addwardrobe и пришли фото заново."
	msgEmptyDesc       = "❌ Не удалось сохранить вещь: пустое описание."
	msgUnsupported     = "🤷 Я понимаю текст, фото и голосовые сообщения."
	msgDownloadFailed  = "❌ Не удалось загрузить файл: "
	msgRecognizeFailed = "❌ Не удалось распознать изображение: "
	msgSaveFailed      = "❌ Не удалось сохранить вещь: "
	msgLogsFailed      = "❌ Не удалось выгрузить логи: "
)

func confirmKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Row(
		telegram.Button("Добавить в гардероб", CallbackCommit),
		telegram.Button("Редактировать", CallbackEdit),
	)
}

func editKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.Row(
		telegram.Button("Редактировать вручную", CallbackManual),
		telegram.Button("Распознать заново", CallbackRetry),
	)
}

func confirmText(item reply.Item) string {
	return fmt.Sprintf("Категория: %s\nОписание: %s", item.Category, item.Description)
}

func malformedText(err error, raw string) string {
	return fmt.Sprintf("❌ Ошибка при обработке JSON: %v\n\nRAW: %s", err, raw)
}

// formatReply renders a conversational reply for the chat.
func formatReply(r reply.Raw) string {
	if r.Kind() == reply.KindStructured {
		rec, err := reply.Normalize(r)
		if err == nil {
			cat, _ := rec.Category()
			desc, _ := rec.Description()
			return fmt.Sprintf("Категория: %s\nОписание: %s", cat, desc)
		}
		return fmt.Sprintf("%v", r.Fields())
	}
	return r.String()
}

package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data carried by the code keypad.
const (
	callbackDigitPrefix = "digit:"
	callbackClear       = "code:clear"
	callbackCancel      = "code:cancel"
)

func startKeyboard(lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(T(lang, "btn_connect"))),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(T(lang, "btn_share"))),
	)
	kb.ResizeKeyboard = true
	return kb
}

func contactKeyboard(lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(T(lang, "btn_send_contact"))),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// numericKeyboard is the 3x4 code keypad: 1-9, then clear, 0, cancel.
func numericKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	digit := func(d int) tgbotapi.InlineKeyboardButton {
		s := strconv.Itoa(d)
		return tgbotapi.NewInlineKeyboardButtonData(s, callbackDigitPrefix+s)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(digit(1), digit(2), digit(3)),
		tgbotapi.NewInlineKeyboardRow(digit(4), digit(5), digit(6)),
		tgbotapi.NewInlineKeyboardRow(digit(7), digit(8), digit(9)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(T(lang, "btn_clear"), callbackClear),
			digit(0),
			tgbotapi.NewInlineKeyboardButtonData(T(lang, "btn_cancel"), callbackCancel),
		),
	)
}

// renderCode shows typed digits followed by placeholders, e.g. "1 2 3 _ _".
func renderCode(code string, length int) string {
	cells := make([]string, 0, length)
	for _, r := range code {
		cells = append(cells, string(r))
	}
	for len(cells) < length {
		cells = append(cells, "_")
	}
	return strings.Join(cells, " ")
}

func codePromptText(lang, code string, length int) string {
	return T(lang, "code_prompt") + "\n\n" + T(lang, "code_label") + " " + renderCode(code, length)
}

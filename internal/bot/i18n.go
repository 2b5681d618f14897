package bot

import "fmt"

// Languages the bot speaks. Unknown languages fall back to Uzbek.
const (
	LangUz = "uz"
	LangRu = "ru"
	LangEn = "en"
)

var catalogue = map[string]map[string]string{
	LangUz: {
		"welcome":            "Assalomu alaykum! Akkauntingizni ulash uchun \"Ulash\" tugmasini bosing.",
		"btn_connect":        "🔗 Ulash",
		"btn_share":          "🎁 Ulashish orqali faollashtirish",
		"btn_send_contact":   "📱 Raqamni yuborish",
		"btn_clear":          "⌫ Tozalash",
		"btn_cancel":         "✖ Bekor qilish",
		"activate_first":     "Avval obunani faollashtiring. /share buyrug'idan foydalaning.",
		"already_active":     "Obunangiz allaqachon faol. Ulash uchun /connect.",
		"already_connected":  "Akkauntingiz allaqachon ulangan. Qayta ulash uchun avval /logout.",
		"connect_prompt":     "Telefon raqamingizni pastdagi tugma orqali yuboring.",
		"share_prompt":       "Faollashtirish uchun telefon raqamingizni yuboring. Muvaffaqiyatli kirishdan so'ng obuna %d kunga faollashadi.",
		"contact_not_own":    "Iltimos, faqat o'zingizning raqamingizni yuboring.",
		"contact_unexpected": "Avval /connect buyrug'ini bering.",
		"invalid_phone":      "Telefon raqami noto'g'ri.",
		"contact_received":   "Raqam qabul qilindi.",
		"code_prompt":        "Telegram yuborgan kodni tugmalar orqali kiriting.",
		"code_label":         "Kod:",
		"code_submitted":     "Kod yuborildi, tekshirilmoqda…",
		"code_complete":      "Kod to'liq kiritilgan.",
		"use_keypad":         "Kodni tugmalar orqali kiriting.",
		"password_prompt":    "Akkauntingizda ikki bosqichli himoya yoqilgan. Parolni yuboring.",
		"password_hint":      "Maslahat: %s",
		"password_received":  "Parol qabul qilindi, tekshirilmoqda…",
		"login_success":      "✅ Akkaunt muvaffaqiyatli ulandi!",
		"login_failed":       "❌ Ulanib bo'lmadi. Qaytadan urinib ko'ring: /connect",
		"login_cancelled":    "Ulanish bekor qilindi.",
		"login_timeout":      "Ulanish vaqti tugadi. Qaytadan urinib ko'ring: /connect",
		"nothing_to_cancel":  "Bekor qilinadigan jarayon yo'q.",
		"no_login":           "Faol ulanish jarayoni yo'q. /connect",
		"logged_out":         "Akkaunt uzildi.",
		"lang_set":           "Til o'zgartirildi.",
		"lang_usage":         "Foydalanish: /lang uz|ru|en",
		"error":              "Xatolik yuz berdi. Qaytadan urinib ko'ring.",
	},
	LangRu: {
		"welcome":            "Здравствуйте! Нажмите «Подключить», чтобы подключить аккаунт.",
		"btn_connect":        "🔗 Подключить",
		"btn_share":          "🎁 Активировать через шеринг",
		"btn_send_contact":   "📱 Отправить номер",
		"btn_clear":          "⌫ Стереть",
		"btn_cancel":         "✖ Отмена",
		"activate_first":     "Сначала активируйте подписку. Используйте /share.",
		"already_active":     "Подписка уже активна. Для подключения используйте /connect.",
		"already_connected":  "Аккаунт уже подключён. Чтобы переподключить, сначала /logout.",
		"connect_prompt":     "Отправьте свой номер телефона кнопкой ниже.",
		"share_prompt":       "Отправьте номер для активации. После успешного входа подписка будет активна %d дней.",
		"contact_not_own":    "Пожалуйста, отправьте свой собственный номер.",
		"contact_unexpected": "Сначала отправьте /connect.",
		"invalid_phone":      "Неверный номер телефона.",
		"contact_received":   "Номер получен.",
		"code_prompt":        "Введите код из Telegram с помощью кнопок.",
		"code_label":         "Код:",
		"code_submitted":     "Код отправлен, проверяем…",
		"code_complete":      "Код уже введён полностью.",
		"use_keypad":         "Введите код кнопками.",
		"password_prompt":    "В аккаунте включена двухэтапная проверка. Отправьте пароль.",
		"password_hint":      "Подсказка: %s",
		"password_received":  "Пароль получен, проверяем…",
		"login_success":      "✅ Аккаунт успешно подключён!",
		"login_failed":       "❌ Не удалось подключиться. Попробуйте снова: /connect",
		"login_cancelled":    "Подключение отменено.",
		"login_timeout":      "Время подключения истекло. Попробуйте снова: /connect",
		"nothing_to_cancel":  "Нечего отменять.",
		"no_login":           "Нет активного подключения. /connect",
		"logged_out":         "Аккаунт отключён.",
		"lang_set":           "Язык изменён.",
		"lang_usage":         "Использование: /lang uz|ru|en",
		"error":              "Произошла ошибка. Попробуйте снова.",
	},
	LangEn: {
		"welcome":            "Hello! Press \"Connect\" to link your account.",
		"btn_connect":        "🔗 Connect",
		"btn_share":          "🎁 Activate by sharing",
		"btn_send_contact":   "📱 Send my number",
		"btn_clear":          "⌫ Clear",
		"btn_cancel":         "✖ Cancel",
		"activate_first":     "Please activate your subscription first. Use /share.",
		"already_active":     "Your subscription is already active. Use /connect.",
		"already_connected":  "Your account is already connected. Use /logout first to reconnect.",
		"connect_prompt":     "Send your phone number with the button below.",
		"share_prompt":       "Send your number to activate. After a successful login your subscription is active for %d days.",
		"contact_not_own":    "Please share your own phone number.",
		"contact_unexpected": "Send /connect first.",
		"invalid_phone":      "That phone number is not valid.",
		"contact_received":   "Number received.",
		"code_prompt":        "Enter the code Telegram sent you using the buttons.",
		"code_label":         "Code:",
		"code_submitted":     "Code sent, checking…",
		"code_complete":      "The code is already complete.",
		"use_keypad":         "Please enter the code with the buttons.",
		"password_prompt":    "Your account has two-step verification. Send your password.",
		"password_hint":      "Hint: %s",
		"password_received":  "Password received, checking…",
		"login_success":      "✅ Account connected!",
		"login_failed":       "❌ Could not connect. Try again: /connect",
		"login_cancelled":    "Connection cancelled.",
		"login_timeout":      "The connection timed out. Try again: /connect",
		"nothing_to_cancel":  "Nothing to cancel.",
		"no_login":           "No connection in progress. /connect",
		"logged_out":         "Account disconnected.",
		"lang_set":           "Language changed.",
		"lang_usage":         "Usage: /lang uz|ru|en",
		"error":              "Something went wrong. Please try again.",
	},
}

// SupportedLanguage reports whether lang has a catalogue.
func SupportedLanguage(lang string) bool {
	_, ok := catalogue[lang]
	return ok
}

// T returns the message for key in lang, formatted with args.
func T(lang, key string, args ...any) string {
	msgs, ok := catalogue[lang]
	if !ok {
		msgs = catalogue[LangUz]
	}
	s, ok := msgs[key]
	if !ok {
		if s, ok = catalogue[LangUz][key]; !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

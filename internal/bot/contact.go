package bot

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers shared without a country code.
const DefaultRegion = "UZ"

var errInvalidPhone = errors.New("invalid phone number")

// NormalizePhone returns raw in E.164 form. Telegram contacts usually carry
// the international number without the leading plus.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errInvalidPhone
	}
	if !strings.HasPrefix(s, "+") && len(s) > 9 {
		s = "+" + s
	}
	num, err := phonenumbers.Parse(s, DefaultRegion)
	if err != nil {
		return "", errInvalidPhone
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// maskPhone keeps the first four characters for logs.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return phone[:4] + "***"
}

package otp

import (
	"fmt"
	"strings"
)

var templates = map[string]string{
	"en": "Your ServeTable code: %s. It expires in %d minutes.",
	"ro": "Codul dvs. ServeTable: %s. Expiră în %d minute.",
	"ru": "Ваш код ServeTable: %s. Действует %d мин.",
}

// Message renders the SMS text for code in lang. Unknown languages fall back
// to English. Region suffixes such as "ro-MD" are ignored.
func Message(lang, code string, ttlMinutes int) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	tmpl, ok := templates[lang]
	if !ok {
		tmpl = templates["en"]
	}
	if ttlMinutes < 1 {
		ttlMinutes = 1
	}
	return fmt.Sprintf(tmpl, code, ttlMinutes)
}

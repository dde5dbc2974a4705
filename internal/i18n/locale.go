package i18n

import (
	"net/http"
	"strings"
)

const DefaultLocale = "en"

var supportedLocales = map[string]struct{}{
	"en": {},
	"de": {},
}

func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale picks the first supported primary language tag from an
// Accept-Language value, ignoring q-weights.
func NormalizeLocale(header string) string {
	for _, part := range strings.Split(header, ",") {
		lang, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		lang, _, _ = strings.Cut(strings.ToLower(strings.TrimSpace(lang)), "-")
		if _, ok := supportedLocales[lang]; ok {
			return lang
		}
	}
	return DefaultLocale
}

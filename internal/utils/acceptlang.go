package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is served when nothing the client asks for is translated.
const DefaultLocale = "en"

// Order matters: the first entry is the matcher's fallback.
var (
	localeTags  = []language.Tag{language.English, language.Chinese}
	localeNames = []string{"en", "zh"}
	matcher     = language.NewMatcher(localeTags)
)

// NegotiateLocale picks a message catalog. An explicit lang query value wins
// over the Accept-Language header; unsupported or malformed input falls back
// to DefaultLocale.
func NegotiateLocale(queryLang, acceptLang string) string {
	if q := strings.TrimSpace(queryLang); q != "" {
		if tag, err := language.Parse(q); err == nil {
			if loc, ok := match(tag); ok {
				return loc
			}
		}
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	if loc, ok := match(tags...); ok {
		return loc
	}
	return DefaultLocale
}

func match(tags ...language.Tag) (string, bool) {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return localeNames[idx], true
}

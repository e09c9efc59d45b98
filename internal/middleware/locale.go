package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/whenwhy/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

// LocaleMiddleware negotiates the message locale from ?lang= or
// Accept-Language, stores it on the context and echoes it as
// Content-Language.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := utils.NegotiateLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}

// WithLocale returns a context carrying locale.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey, locale)
}

func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok && s != "" {
		return s
	}
	return utils.DefaultLocale
}

// Package i18n negotiates the response language and renders the user-facing
// notices of the login and session guards. German is the default.
package i18n

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/platinummonkey/andobill/pkg/contextkeys"
)

// Message keys
const (
	MsgTooManyAttempts    = "auth.throttle"
	MsgInvalidCredentials = "auth.failed"
	MsgAccountInactive    = "auth.account_inactive"
	MsgCompanyInactive    = "auth.company_inactive"
	MsgSessionExpired     = "auth.session_expired"
	MsgLoggedOut          = "auth.logged_out"
	MsgForbidden          = "authz.forbidden"
)

var supported = []language.Tag{language.German, language.English}

var matcher = language.NewMatcher(supported)

var translations = map[language.Tag]map[string]string{
	language.German: {
		MsgTooManyAttempts:    "Zu viele Anmeldeversuche. Bitte versuchen Sie es in %d Sekunden erneut.",
		MsgInvalidCredentials: "Diese Zugangsdaten stimmen nicht mit unseren Daten überein.",
		MsgAccountInactive:    "Ihr Benutzerkonto ist deaktiviert.",
		MsgCompanyInactive:    "Ihre Firma ist deaktiviert.",
		MsgSessionExpired:     "Ihre Sitzung ist wegen Inaktivität abgelaufen. Bitte melden Sie sich erneut an.",
		MsgLoggedOut:          "Sie wurden abgemeldet.",
		MsgForbidden:          "Sie haben keine Berechtigung für diese Aktion.",
	},
	language.English: {
		MsgTooManyAttempts:    "Too many login attempts. Please try again in %d seconds.",
		MsgInvalidCredentials: "These credentials do not match our records.",
		MsgAccountInactive:    "Your account has been deactivated.",
		MsgCompanyInactive:    "Your company has been deactivated.",
		MsgSessionExpired:     "Your session expired due to inactivity. Please log in again.",
		MsgLoggedOut:          "You have been logged out.",
		MsgForbidden:          "You are not allowed to perform this action.",
	},
}

var cat = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.German))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Negotiate picks the best supported language for an Accept-Language header
func Negotiate(acceptLanguage string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// WithLanguage stores tag on ctx
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return contextkeys.WithLanguage(ctx, tag.String())
}

// FromContext returns the language on ctx, German when unset
func FromContext(ctx context.Context) language.Tag {
	if s := contextkeys.GetLanguage(ctx); s != "" {
		if tag, err := language.Parse(s); err == nil {
			return tag
		}
	}
	return language.German
}

// T renders key in the language on ctx
func T(ctx context.Context, key string, args ...interface{}) string {
	return Sprintf(FromContext(ctx), key, args...)
}

// Sprintf renders key in tag
func Sprintf(tag language.Tag, key string, args ...interface{}) string {
	p := message.NewPrinter(tag, message.Catalog(cat))
	return p.Sprintf(key, args...)
}

// Middleware negotiates the language from Accept-Language
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := Negotiate(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", tag.String())
		next.ServeHTTP(w, r.WithContext(WithLanguage(r.Context(), tag)))
	})
}

// Package deeplink turns inbound URLs into navigation intents. Only one path
// is mapped: <prefix>reset-password?oobCode=<code>.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	// ScreenResetPassword is the screen a password reset link opens.
	ScreenResetPassword = "reset-password"
	// ParamOOBCode carries the one-time action code.
	ParamOOBCode = "oobCode"
)

var (
	ErrNoLink    = errors.New("deeplink: no url")
	ErrMalformed = errors.New("deeplink: malformed url")
	ErrUnmapped  = errors.New("deeplink: unmapped url")
)

// Intent is a navigation request derived from one URL.
type Intent struct {
	Screen string
	Params map[string]string
}

// Parse maps raw to an Intent. prefixes are matched in order, each ending in
// "/" or "://" the same way ResetPasswordURL builds them.
func Parse(prefixes []string, raw string) (Intent, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Intent{}, ErrNoLink
	}
	if _, err := url.Parse(raw); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, prefix := range prefixes {
		prefix = normalizePrefix(prefix)
		if prefix == "" || !strings.HasPrefix(raw, prefix) {
			continue
		}
		rest := raw[len(prefix):]
		if i := strings.IndexByte(rest, '#'); i >= 0 {
			rest = rest[:i]
		}
		path, rawQuery, _ := strings.Cut(rest, "?")
		if strings.TrimSuffix(path, "/") != ScreenResetPassword {
			continue
		}
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		code := strings.TrimSpace(q.Get(ParamOOBCode))
		if code == "" {
			return Intent{}, fmt.Errorf("%w: %s without %s", ErrUnmapped, ScreenResetPassword, ParamOOBCode)
		}
		return Intent{Screen: ScreenResetPassword, Params: map[string]string{ParamOOBCode: code}}, nil
	}
	return Intent{}, ErrUnmapped
}

// ResetPasswordURL builds the link a password reset message carries.
func ResetPasswordURL(prefix, code string) string {
	return normalizePrefix(prefix) + ScreenResetPassword + "?" + url.Values{ParamOOBCode: {code}}.Encode()
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

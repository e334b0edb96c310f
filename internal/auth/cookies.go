package auth

import (
	"net/http"
	"time"
)

const (
	LoginSessionCookie   = "login_session"
	RememberDeviceCookie = "remember_device"
	AuthSessionCookie    = "auth_session"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, httpOnly bool, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

func clearCookie(w http.ResponseWriter, name string, httpOnly bool, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: httpOnly,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// SetLoginSessionCookie stores the opaque login-attempt token while the
// second factor is pending.
func SetLoginSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	setCookie(w, LoginSessionCookie, token, maxAge, true, config)
}

func ClearLoginSessionCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, LoginSessionCookie, true, config)
}

// SetRememberDeviceCookie stores the signed trusted-device token.
func SetRememberDeviceCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	setCookie(w, RememberDeviceCookie, token, maxAge, true, config)
}

// ClearRememberDeviceCookie instructs the client to discard its
// trusted-device token. The token itself stays valid until expiry; the
// server keeps no revocation list.
func ClearRememberDeviceCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, RememberDeviceCookie, true, config)
}

func SetAuthSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	setCookie(w, AuthSessionCookie, token, maxAge, true, config)
}

func ClearAuthSessionCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, AuthSessionCookie, true, config)
}

// CookieValue reads a named cookie, returning "" when absent.
func CookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

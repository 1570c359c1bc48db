package session

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Cookie is the canonical session cookie shape. Capture tools emit several
// variants (selenium dumps use "expiry" in epoch seconds, extensions use
// "expirationDate"); Normalize collapses them all into this.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expiry   float64 `json:"expiry,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// primaryAuthCookie is the cookie that actually carries the authenticated
// session; without it the cookie set cannot resume a login.
const primaryAuthCookie = "li_at"

// essentialCookies is the small set worth storing. Everything else is
// tracking or analytics noise and is discarded to bound the stored-secret
// surface area.
var essentialCookies = map[string]bool{
	"li_at":      true,
	"JSESSIONID": true,
	"liap":       true,
	"li_rm":      true,
	"bcookie":    true,
	"bscookie":   true,
}

const (
	defaultCookieDomain = ".linkedin.com"
	defaultCookiePath   = "/"
)

// Normalize converts heterogeneous raw cookie captures into canonical
// Cookies, filling domain and path defaults.
func Normalize(raw []map[string]any) []Cookie {
	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		name, _ := rc["name"].(string)
		value, _ := rc["value"].(string)
		if name == "" || value == "" {
			continue
		}

		c := Cookie{
			Name:   name,
			Value:  value,
			Domain: defaultCookieDomain,
			Path:   defaultCookiePath,
		}
		if d, ok := rc["domain"].(string); ok && d != "" {
			c.Domain = d
		}
		if p, ok := rc["path"].(string); ok && p != "" {
			c.Path = p
		}
		switch exp := rc["expiry"].(type) {
		case float64:
			c.Expiry = exp
		case int:
			c.Expiry = float64(exp)
		}
		if exp, ok := rc["expirationDate"].(float64); ok && c.Expiry == 0 {
			c.Expiry = exp
		}
		if h, ok := rc["httpOnly"].(bool); ok {
			c.HTTPOnly = h
		}
		if sec, ok := rc["secure"].(bool); ok {
			c.Secure = sec
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// FilterEssential keeps only the cookies that matter for session
// resumption.
func FilterEssential(cookies []Cookie) []Cookie {
	kept := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if essentialCookies[c.Name] {
			kept = append(kept, c)
		}
	}
	return kept
}

// Validate reports whether a cookie set can resume a session: the primary
// authentication cookie must be present.
func Validate(cookies []Cookie) bool {
	for _, c := range cookies {
		if c.Name == primaryAuthCookie && c.Value != "" {
			return true
		}
	}
	return false
}

// MarshalCookies serializes cookies for encryption.
func MarshalCookies(cookies []Cookie) (string, error) {
	data, err := json.Marshal(cookies)
	if err != nil {
		return "", eris.Wrap(err, "session: marshal cookies")
	}
	return string(data), nil
}

// UnmarshalCookies deserializes a decrypted cookie blob.
func UnmarshalCookies(data string) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.Unmarshal([]byte(data), &cookies); err != nil {
		return nil, eris.Wrap(err, "session: unmarshal cookies")
	}
	return cookies, nil
}

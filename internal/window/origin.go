package window

import (
	"fmt"
	"net/url"
	"strings"
)

// WildcardOrigin matches any target origin. Posting with it hands the data
// to whatever document currently occupies the target window, so senders of
// anything sensitive should name an explicit origin instead.
const WildcardOrigin = "*"

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// NormalizeOrigin serializes an origin as scheme://host[:port] with the
// scheme and host lower-cased and default ports removed. Paths, queries and
// fragments are discarded. The wildcard is returned unchanged.
func NormalizeOrigin(origin string) (string, error) {
	if origin == WildcardOrigin {
		return origin, nil
	}
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidOrigin, origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port, nil
	}
	return scheme + "://" + host, nil
}

// OriginMatches reports whether a message addressed to target may be
// delivered to a window whose origin is actual.
func OriginMatches(target, actual string) bool {
	if target == WildcardOrigin {
		return true
	}
	t, err := NormalizeOrigin(target)
	if err != nil {
		return false
	}
	a, err := NormalizeOrigin(actual)
	if err != nil {
		return false
	}
	return t == a
}

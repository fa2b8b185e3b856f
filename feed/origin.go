package feed

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// originChecker reports whether a WebSocket origin is allowed: same-origin,
// localhost, private networks and explicitly listed origins pass.
type originChecker struct {
	allowed map[string]struct{}
}

func newOriginChecker(allowedOrigins []string) *originChecker {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return &originChecker{allowed: allowed}
}

func (c *originChecker) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	if _, ok := c.allowed["*"]; ok {
		return true
	}
	if _, ok := c.allowed[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "originChecker.check",
			"origin":   origin,
		}).Warn("Rejected WebSocket connection: invalid origin URL")
		return false
	}

	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	logrus.WithFields(logrus.Fields{
		"function": "originChecker.check",
		"origin":   origin,
		"host":     host,
	}).Warn("Rejected WebSocket connection")
	return false
}

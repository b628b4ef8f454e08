package util

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeServerURL parses a raw server address and returns its canonical
// form: scheme defaulted to http, no trailing slash and no trailing /api.
func NormalizeServerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty server URL")
	}
	u, err := url.Parse(raw)
	if err == nil && (u.Scheme == "" || u.Host == "") {
		if u2, e2 := url.Parse("http://" + raw); e2 == nil {
			u = u2
		}
	}
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q in server URL %q (valid: http|https)", u.Scheme, raw)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.Path = strings.TrimSuffix(u.Path, "/api")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// StreamURL derives the websocket endpoint of a job from a normalized server URL.
// http becomes ws and https becomes wss.
func StreamURL(server, jobID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in server URL %q", u.Scheme, server)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/jobs/" + url.PathEscape(jobID) + "/stream"
	return u.String(), nil
}

// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// originPolicy is the upgrade-time allow-list. It can be swapped on config
// reload while upgrades are in flight.
type originPolicy struct {
	mu       sync.RWMutex
	allowAll bool
	allowed  map[string]struct{}
	log      logx.Logger
}

func newOriginPolicy(origins []string, log logx.Logger) *originPolicy {
	p := &originPolicy{log: log}
	p.set(origins)
	return p
}

func (p *originPolicy) set(origins []string) {
	normalized, allowAll := normalizeOrigins(origins, p.log)

	allowed := make(map[string]struct{}, len(normalized))
	for _, origin := range normalized {
		allowed[origin] = struct{}{}
	}

	p.mu.Lock()
	p.allowAll = allowAll
	p.allowed = allowed
	p.mu.Unlock()
}

// check is used as the upgrader's CheckOrigin. Requests without an Origin
// header come from non-browser clients and are only admitted under "*".
func (p *originPolicy) check(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}
	p.log.Warn("blocked websocket connection from disallowed origin",
		logx.String("origin", r.Header.Get("Origin")),
		logx.String("remote", r.RemoteAddr),
	)
	return false
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.allowAll {
		return true
	}

	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}
	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}
	_, exists := p.allowed[normalizedOrigin]
	return exists
}

func normalizeOrigins(origins []string, log logx.Logger) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("ignoring invalid origin in configuration", logx.String("origin", origin))
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

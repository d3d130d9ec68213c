// Package featureflags evaluates rollout flags configured through FEATURE_FLAGS.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

const (
	// FlagGoogleLogin gates the Google sign-in endpoints.
	FlagGoogleLogin = "google_login"
	// FlagUnreadNotifications gates realtime "unread message" pushes.
	FlagUnreadNotifications = "unread_notifications"
	// FlagEventPublishing gates publishing domain events to the broker.
	FlagEventPublishing = "event_publishing"
)

// Builtin lists the flags the application checks. Each is on unless
// FEATURE_FLAGS says otherwise.
var Builtin = []string{FlagGoogleLogin, FlagUnreadNotifications, FlagEventPublishing}

type rule struct {
	raw     string
	percent int // 0..100
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "google_login=on,unread_notifications=25%,event_publishing=off"
type Manager struct {
	rules map[string]rule
}

// NewManager parses a comma-separated flag list. Malformed pairs and
// unrecognised values are skipped.
func NewManager(raw string) *Manager {
	out := make(map[string]rule)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		pct, ok := parseValue(value)
		if !ok {
			continue
		}
		out[key] = rule{raw: value, percent: pct}
	}

	return &Manager{rules: out}
}

func parseValue(v string) (int, bool) {
	switch v {
	case "on", "true", "1":
		return 100, true
	case "off", "false", "0":
		return 0, true
	}
	if !strings.HasSuffix(v, "%") {
		return 0, false
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	if err != nil {
		return 0, false
	}
	return min(max(pct, 0), 100), true
}

// Configured reports whether name appears in the flag list.
func (m *Manager) Configured(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.rules[normalize(name)]
	return ok
}

// Enabled returns whether a flag is on for a given user. Unknown flags are off.
// Percentage rollouts bucket users deterministically and never include user 0.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch r.percent {
	case 0:
		return false
	case 100:
		return true
	}
	if userID == 0 {
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// EnabledOr is Enabled for configured flags and def otherwise.
func (m *Manager) EnabledOr(name string, userID uint, def bool) bool {
	if !m.Configured(name) {
		return def
	}
	return m.Enabled(name, userID)
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Names returns the configured flag names in sorted order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for k := range m.rules {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns evaluated flag status for one user: every configured
// flag plus the builtin ones at their defaults.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(Builtin))
	for _, name := range Builtin {
		out[name] = m.EnabledOr(name, userID, true)
	}
	if m == nil {
		return out
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), userID)))
	return int(h.Sum32() % 100)
}

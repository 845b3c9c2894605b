// Package featureflags evaluates on/off and percentage-rollout flags per user.
package featureflags

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Flags read by the service.
const (
	// ResponseCache serves the review feed from Redis for a short TTL.
	ResponseCache = "response_cache"
	// CommunityAutojoin makes posting in a community add the author as a member.
	CommunityAutojoin = "community_autojoin"
)

// rule is a parsed flag value. percent is 0..100; 100 means on for everyone
// including anonymous callers.
type rule struct {
	raw     string
	percent int
}

// Manager holds flags parsed from FEATURE_FLAGS, e.g.
// "response_cache=on,community_autojoin=25%". Unparseable values are kept
// in Raw but evaluate to off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses a comma-separated key=value list. Keys are case-insensitive.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key, value = normalize(key), normalize(value)
		if !ok || key == "" || value == "" {
			continue
		}
		rules[key] = rule{raw: value, percent: parsePercent(value)}
	}
	return &Manager{rules: rules}
}

func parsePercent(value string) int {
	switch value {
	case "on", "true", "1":
		return 100
	case "off", "false", "0":
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if err != nil || !strings.HasSuffix(value, "%") {
		return 0
	}
	return min(max(n, 0), 100)
}

// Enabled reports whether name is on for userID. Partial rollouts bucket users
// deterministically and never include anonymous callers.
func (m *Manager) Enabled(name, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	switch {
	case !ok || r.percent == 0:
		return false
	case r.percent == 100:
		return true
	case userID == "":
		return false
	}
	return rolloutBucket(name, userID) < r.percent
}

// Raw returns the configured values by flag name.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every configured flag for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := map[string]bool{}
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

func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}

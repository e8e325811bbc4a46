package device

import (
	"sort"
	"strconv"
	"strings"

	"github.com/MrEthical07/goGuard/internal"
)

// Signals are optional client-reported attributes mixed into a fingerprint.
type Signals struct {
	ScreenResolution string   `json:"screenResolution,omitempty"`
	Timezone         string   `json:"timezone,omitempty"`
	Language         string   `json:"language,omitempty"`
	Plugins          []string `json:"plugins,omitempty"`
	// Timestamp participates only when non-zero. Leaving it unset keeps a
	// device's fingerprint stable across logins.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Fingerprint returns a hex SHA-256 over the parsed agent and any signals.
// It never fails: when the agent is not recognised and no signals are given,
// the raw agent string is hashed instead.
func Fingerprint(ua string, sig *Signals) string {
	info := ParseUserAgent(ua)
	if !info.Recognized() && sig.empty() {
		return internal.HashHex(ua)
	}

	parts := []string{info.Browser, info.OS, info.DeviceType}
	if sig != nil {
		plugins := append([]string(nil), sig.Plugins...)
		sort.Strings(plugins)
		parts = append(parts,
			sig.ScreenResolution,
			sig.Timezone,
			sig.Language,
			strings.Join(plugins, ","),
		)
		if sig.Timestamp != 0 {
			parts = append(parts, strconv.FormatInt(sig.Timestamp, 10))
		}
	}
	return internal.HashHex(strings.Join(parts, "|"))
}

// Describe parses ua and attaches its fingerprint.
func Describe(ua string, sig *Signals) Info {
	info := ParseUserAgent(ua)
	info.Fingerprint = Fingerprint(ua, sig)
	return info
}

// SameDevice reports exact fingerprint equality. Empty fingerprints never match.
func SameDevice(a, b string) bool {
	return a != "" && a == b
}

func (s *Signals) empty() bool {
	return s == nil || (s.ScreenResolution == "" && s.Timezone == "" && s.Language == "" &&
		len(s.Plugins) == 0 && s.Timestamp == 0)
}

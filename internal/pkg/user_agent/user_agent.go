// Package user_agent classifies raw User-Agent strings into coarse device,
// browser and operating system buckets for the analytics dashboard.
package user_agent

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yml
var defaultRules []byte

// Unknown is used for any browser or OS that no rule recognises.
const Unknown = "unknown"

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// UserAgent holds the classification of a single User-Agent string.
// All fields are always populated.
type UserAgent struct {
	Device  string
	Browser string
	OS      string
}

// rule matches when the lowercased user agent contains any of the tokens
// in Match and none of the tokens in Exclude.
type rule struct {
	Name    string   `yaml:"name"`
	Match   []string `yaml:"match"`
	Exclude []string `yaml:"exclude"`
}

func (r rule) matches(ua string) bool {
	for _, token := range r.Exclude {
		if strings.Contains(ua, token) {
			return false
		}
	}
	for _, token := range r.Match {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

type ruleSet struct {
	Browsers []rule `yaml:"browsers"`
	OS       []rule `yaml:"os"`
}

var rules = mustLoadRules(defaultRules)

func mustLoadRules(data []byte) ruleSet {
	var set ruleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		panic("user_agent: invalid rules.yml: " + err.Error())
	}
	return set
}

// ParseUserAgent classifies userAgent. It never fails: an empty or
// unrecognised string yields a desktop device with unknown browser and OS.
func ParseUserAgent(userAgent string) UserAgent {
	ua := strings.ToLower(userAgent)
	return UserAgent{
		Device:  deviceOf(ua),
		Browser: firstMatch(rules.Browsers, ua),
		OS:      firstMatch(rules.OS, ua),
	}
}

func deviceOf(ua string) string {
	switch {
	case strings.Contains(ua, "mobile"):
		return DeviceMobile
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

func firstMatch(rules []rule, ua string) string {
	if ua == "" {
		return Unknown
	}
	for _, r := range rules {
		if r.matches(ua) {
			return r.Name
		}
	}
	return Unknown
}

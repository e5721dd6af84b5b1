package hostid

import (
	"regexp"
	"slices"
)

// Rule is a predicate over host identity. A matching rule vetoes the
// compiled adapter.
type Rule interface {
	Name() string
	Matches(Identity) bool
}

// RuleFunc adapts a function to Rule.
type RuleFunc struct {
	Fn    func(Identity) bool
	Label string
}

func (r RuleFunc) Name() string             { return r.Label }
func (r RuleFunc) Matches(id Identity) bool { return r.Fn(id) }

var appleMobileUA = regexp.MustCompile(`iPad|iPhone|iPod`)

// MobileWebKit matches WebKit on iOS and iPadOS, whose garbage collector
// corrupts state under the compiled adapter (WebKit bug 293113, iOS 18.3.1+).
//
// iPadOS 13+ reports a desktop platform string, so "MacIntel" with more than
// one touch point is treated as an iPad.
func MobileWebKit() Rule {
	return RuleFunc{
		Label: "mobile-webkit",
		Fn: func(id Identity) bool {
			if appleMobileUA.MatchString(id.UserAgent) {
				return true
			}
			return id.Platform == "MacIntel" && id.MaxTouchPoints > 1
		},
	}
}

// GOOSRule matches processes built for any of the given GOOS values.
func GOOSRule(goos ...string) Rule {
	return RuleFunc{
		Label: "goos",
		Fn: func(id Identity) bool {
			return id.GOOS != "" && slices.Contains(goos, id.GOOS)
		},
	}
}

// Spec is a declarative rule, as read from a rule file. All populated
// fields must match; a spec with no populated matcher never matches.
type Spec struct {
	Name           string `yaml:"name" json:"name" validate:"required"`
	UserAgent      string `yaml:"user_agent" json:"user_agent,omitempty" jsonschema:"description=Regular expression matched against the user agent"`
	Platform       string `yaml:"platform" json:"platform,omitempty"`
	GOOS           string `yaml:"goos" json:"goos,omitempty"`
	MinTouchPoints int    `yaml:"min_touch_points" json:"min_touch_points,omitempty" validate:"gte=0"`
}

type specRule struct {
	ua   *regexp.Regexp
	spec Spec
}

// Compile turns a spec into a Rule.
func (s Spec) Compile() (Rule, error) {
	r := &specRule{spec: s}
	if s.UserAgent != "" {
		re, err := regexp.Compile(s.UserAgent)
		if err != nil {
			return nil, err
		}
		r.ua = re
	}
	return r, nil
}

func (r *specRule) Name() string { return r.spec.Name }

func (r *specRule) Matches(id Identity) bool {
	matched := false
	if r.ua != nil {
		if !r.ua.MatchString(id.UserAgent) {
			return false
		}
		matched = true
	}
	if r.spec.Platform != "" {
		if id.Platform != r.spec.Platform {
			return false
		}
		matched = true
	}
	if r.spec.GOOS != "" {
		if id.GOOS != r.spec.GOOS {
			return false
		}
		matched = true
	}
	if r.spec.MinTouchPoints > 0 {
		if id.MaxTouchPoints < r.spec.MinTouchPoints {
			return false
		}
		matched = true
	}
	return matched
}

package hostid

import (
	"os"
	"runtime"
	"strconv"
)

// Environment variables that override the detected identity.
const (
	EnvUserAgent      = "TRAMPOLINE_HOST_UA"
	EnvPlatform       = "TRAMPOLINE_HOST_PLATFORM"
	EnvMaxTouchPoints = "TRAMPOLINE_HOST_TOUCH_POINTS"
)

// Identity describes the host execution environment.
// It is read-only input to detection.
type Identity struct {
	UserAgent      string `yaml:"user_agent" json:"user_agent,omitempty"`
	Platform       string `yaml:"platform" json:"platform,omitempty"`
	GOOS           string `yaml:"goos" json:"goos,omitempty"`
	GOARCH         string `yaml:"goarch" json:"goarch,omitempty"`
	MaxTouchPoints int    `yaml:"max_touch_points" json:"max_touch_points,omitempty" validate:"gte=0"`
}

// Current returns the identity of this process, with environment overrides
// applied for hosts that proxy a browser or device identity.
func Current() Identity {
	id := Identity{
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
	}
	if v, ok := os.LookupEnv(EnvUserAgent); ok {
		id.UserAgent = v
	}
	if v, ok := os.LookupEnv(EnvPlatform); ok {
		id.Platform = v
	}
	if v, ok := os.LookupEnv(EnvMaxTouchPoints); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			id.MaxTouchPoints = n
		}
	}
	return id
}

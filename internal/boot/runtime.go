// Package boot provides runtime configuration and dependency wiring for
// the daemon.
package boot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/config"
)

// RuntimeConfig holds parsed runtime settings (JWT, server address,
// dispatcher endpoint). Values may be overridden by environment
// variables (e.g. HTTP_ADDR, DISPATCH_URL).
type RuntimeConfig struct {
	JwtSecret       string
	ServerAddr      string
	DispatchBaseURL string
	DispatchToken   string
	DispatchTimeout time.Duration
	SkillsDir       string
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and
// applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if strings.TrimSpace(cfg.Dispatch.BaseURL) == "" {
		return nil, errors.New("dispatch base_url is required")
	}
	if cfg.Dispatch.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid dispatch timeout: %d", cfg.Dispatch.TimeoutSeconds)
	}

	ret := &RuntimeConfig{
		JwtSecret:       cfg.Auth.JWTSecret,
		ServerAddr:      cfg.Server.Addr,
		DispatchBaseURL: cfg.Dispatch.BaseURL,
		DispatchToken:   cfg.Dispatch.Token,
		DispatchTimeout: time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
		SkillsDir:       cfg.Skills.Dir,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}

	if value := os.Getenv("DISPATCH_URL"); value != "" {
		ret.DispatchBaseURL = value
	}
	return ret, nil
}

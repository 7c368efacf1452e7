package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# algodesk configuration

[api]
# Backend REST base URL (all endpoints are relative to it)
base_url = "http://localhost:8000/api/"
# WebSocket host; derived from base_url when empty
ws_url = ""
# Per-request timeout
timeout = "30s"
# Value sent as x-forwarded-for on authenticated calls; the local outbound
# address toward base_url when empty
forwarded_for = ""

[stream]
# Snapshot delivery: "push" (WebSocket) or "pull" (REST polling)
mode = "push"
# Polling interval in pull mode
poll_interval = "5s"
# Re-dial a dropped WebSocket
reconnect = false
reconnect_delay = "5s"

[ui]
color_enabled = true
date_format = "02-Jan-2006"
time_format = "15:04:05"

[log]
# debug, info, warn, error
level = "info"
console = false
file = true

[server]
# Local read-model gateway (algodesk serve)
addr = "127.0.0.1:8787"
allowed_origins = ["http://localhost:3000"]
`

// createTemplateConfig writes config.toml with defaults if it does not exist.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0600)
}

// Package config loads the pikiosk TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/pikiosk/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Listen address: 0.0.0.0:8080
//   - Storage directory: ~/.local/share/pikiosk
//   - OAuth client secrets: <storage_dir>/credentials.json
//   - OAuth token: <storage_dir>/picker_token.json
//   - Downloaded photos: <storage_dir>/photos
//   - Picker API: https://photospicker.googleapis.com/v1
//   - Queue backend: memory
//
// Relative client_secrets and token_file values are resolved against
// storage_dir; absolute and ~-prefixed values are used as given.
//
// # TOML Format
//
//	listen_addr = "0.0.0.0:8080"
//	storage_dir = "~/.local/share/pikiosk"
//	client_secrets = "credentials.json"
//	token_file = "picker_token.json"
//	oauth_port = 8090
//	display_env = "DISPLAY=:0"
//	log_level = "info"
//	debug = false
//	queue_backend = "memory"   # or "redis"
//	redis_addr = "127.0.0.1:6379"
//	redis_key = "pikiosk:queue"
//	slideshow_interval = 120   # seconds
//	download_media = true
//
// # Error Handling
//
// A missing file is not an error. Unreadable files, malformed TOML, an
// unknown queue_backend, or a redis backend without redis_addr are returned
// as errors.
package config

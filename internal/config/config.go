package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything pikiosk needs to run on the display host.
type Config struct {
	ListenAddr        string
	StorageDir        string
	ClientSecretsPath string
	TokenPath         string
	PickerBaseURL     string
	OAuthPort         int
	DisplayEnv        string
	LogLevel          string
	Debug             bool
	QueueBackend      string
	RedisAddr         string
	RedisKey          string
	SlideshowInterval time.Duration
	DownloadMedia     bool
}

const (
	defaultConfigPath        = "~/.config/pikiosk/config.toml"
	defaultListenAddr        = "0.0.0.0:8080"
	defaultStorageDir        = "~/.local/share/pikiosk"
	defaultClientSecrets     = "credentials.json"
	defaultTokenFile         = "picker_token.json"
	defaultPickerBaseURL     = "https://photospicker.googleapis.com/v1"
	defaultOAuthPort         = 8090
	defaultDisplayEnv        = "DISPLAY=:0"
	defaultLogLevel          = "info"
	defaultRedisKey          = "pikiosk:queue"
	defaultSlideshowInterval = 120 * time.Second

	// QueueMemory keeps published messages in process memory.
	QueueMemory = "memory"
	// QueueRedis keeps published messages in a redis list.
	QueueRedis = "redis"
)

type rawConfig struct {
	ListenAddr        string `toml:"listen_addr"`
	StorageDir        string `toml:"storage_dir"`
	ClientSecrets     string `toml:"client_secrets"`
	TokenFile         string `toml:"token_file"`
	PickerBaseURL     string `toml:"picker_base_url"`
	OAuthPort         int    `toml:"oauth_port"`
	DisplayEnv        string `toml:"display_env"`
	LogLevel          string `toml:"log_level"`
	Debug             bool   `toml:"debug"`
	QueueBackend      string `toml:"queue_backend"`
	RedisAddr         string `toml:"redis_addr"`
	RedisKey          string `toml:"redis_key"`
	SlideshowInterval int    `toml:"slideshow_interval"`
	DownloadMedia     *bool  `toml:"download_media"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	storage := mustExpand(defaultStorageDir)
	return Config{
		ListenAddr:        defaultListenAddr,
		StorageDir:        storage,
		ClientSecretsPath: filepath.Join(storage, defaultClientSecrets),
		TokenPath:         filepath.Join(storage, defaultTokenFile),
		PickerBaseURL:     defaultPickerBaseURL,
		OAuthPort:         defaultOAuthPort,
		DisplayEnv:        defaultDisplayEnv,
		LogLevel:          defaultLogLevel,
		QueueBackend:      QueueMemory,
		RedisKey:          defaultRedisKey,
		SlideshowInterval: defaultSlideshowInterval,
		DownloadMedia:     true,
	}
}

// Load locates and parses the pikiosk config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (Config, error) {
	cfg := Default()

	if v := strings.TrimSpace(raw.ListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(raw.StorageDir); v != "" {
		cfg.StorageDir = mustExpand(v)
	}
	cfg.ClientSecretsPath = storagePath(cfg.StorageDir, raw.ClientSecrets, defaultClientSecrets)
	cfg.TokenPath = storagePath(cfg.StorageDir, raw.TokenFile, defaultTokenFile)

	if v := strings.TrimSpace(raw.PickerBaseURL); v != "" {
		cfg.PickerBaseURL = strings.TrimRight(v, "/")
	}
	if raw.OAuthPort > 0 {
		cfg.OAuthPort = raw.OAuthPort
	}
	if v := strings.TrimSpace(raw.DisplayEnv); v != "" {
		cfg.DisplayEnv = v
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.Debug = raw.Debug

	switch backend := strings.ToLower(strings.TrimSpace(raw.QueueBackend)); backend {
	case "", QueueMemory:
		cfg.QueueBackend = QueueMemory
	case QueueRedis:
		cfg.QueueBackend = QueueRedis
	default:
		return Config{}, fmt.Errorf("unknown queue_backend %q", raw.QueueBackend)
	}
	cfg.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	if cfg.QueueBackend == QueueRedis && cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("queue_backend %q requires redis_addr", QueueRedis)
	}
	if v := strings.TrimSpace(raw.RedisKey); v != "" {
		cfg.RedisKey = v
	}

	if raw.SlideshowInterval > 0 {
		cfg.SlideshowInterval = time.Duration(raw.SlideshowInterval) * time.Second
	}
	if raw.DownloadMedia != nil {
		cfg.DownloadMedia = *raw.DownloadMedia
	}
	return cfg, nil
}

// PhotosDir returns the directory downloaded media items are written to.
func (c Config) PhotosDir() string {
	if strings.TrimSpace(c.StorageDir) == "" {
		return mustExpand(defaultStorageDir + "/photos")
	}
	return filepath.Join(c.StorageDir, "photos")
}

// OAuthRedirectURL is the loopback address the authorization flow listens on.
func (c Config) OAuthRedirectURL() string {
	port := c.OAuthPort
	if port <= 0 {
		port = defaultOAuthPort
	}
	return fmt.Sprintf("http://localhost:%d/", port)
}

// storagePath resolves name relative to dir unless it is absolute or starts with ~.
func storagePath(dir, name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = fallback
	}
	if strings.HasPrefix(trimmed, "~") || filepath.IsAbs(trimmed) {
		return mustExpand(trimmed)
	}
	return filepath.Join(dir, trimmed)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

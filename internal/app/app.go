package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/five82/pikiosk/internal/auth"
	"github.com/five82/pikiosk/internal/config"
	"github.com/five82/pikiosk/internal/display"
	"github.com/five82/pikiosk/internal/picker"
	"github.com/five82/pikiosk/internal/queue"
	"github.com/five82/pikiosk/internal/server"
	"github.com/five82/pikiosk/internal/session"
	"github.com/five82/pikiosk/internal/slideshow"
	"github.com/five82/pikiosk/internal/ui"
)

const redisDialTimeout = 3 * time.Second

// Options configure a pikiosk run.
type Options struct {
	ConfigPath string
	ListenAddr string // overrides listen_addr when set
	LogOutput  io.Writer
}

// Run serves the kiosk HTTP surface until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	configureLogging(cfg, opts.LogOutput)

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tokens, err := newTokenStore(cfg)
	if err != nil {
		return err
	}
	if err := tokens.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("token file watch disabled")
	}

	client, err := picker.NewClient(cfg.PickerBaseURL, tokens)
	if err != nil {
		return fmt.Errorf("init picker client: %w", err)
	}

	invoker := display.NewInvoker(display.ExecRunner{}, cfg.DisplayEnv)
	show := slideshow.New(cfg.PhotosDir(), invoker, cfg.SlideshowInterval)

	sessionOpts := session.Options{
		OnComplete: func(snap session.Snapshot) {
			log.Info().Str("session_id", snap.SessionID).
				Int("media_items", len(snap.MediaItems)).
				Int("downloaded", len(snap.DownloadedFiles)).
				Msg("photo selection ready")
			if len(snap.DownloadedFiles) > 0 {
				show.Start(ctx)
			}
		},
	}
	if cfg.DownloadMedia {
		sessionOpts.PhotosDir = cfg.PhotosDir()
	}
	sessions := session.NewService(ctx, client, session.NewStore(), sessionOpts)
	defer sessions.Shutdown()

	q, closeQueue, err := newQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeQueue()

	srv := server.New(server.Options{
		Addr:        cfg.ListenAddr,
		Sessions:    sessions,
		Queue:       q,
		Display:     invoker,
		Screensaver: show,
		BaseContext: ctx,
	})

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("storage", cfg.StorageDir).
		Str("queue", cfg.QueueBackend).
		Msg("pikiosk starting")

	serveErr := srv.ListenAndServe(ctx)

	if show.Running() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := show.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("stop slideshow")
		}
		cancel()
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Authorize runs the interactive OAuth consent screen and stores the token.
func Authorize(ctx context.Context, opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// The TUI owns the terminal.
	cfg.LogLevel = "error"
	configureLogging(cfg, opts.LogOutput)

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	oauthCfg, err := auth.LoadClientConfig(cfg.ClientSecretsPath, cfg.OAuthRedirectURL())
	if err != nil {
		return err
	}
	flow, err := auth.NewStore(cfg.TokenPath, oauthCfg).NewFlow()
	if err != nil {
		return err
	}

	return ui.Run(ui.Options{
		Context:    ctx,
		Flow:       flow,
		ListenAddr: fmt.Sprintf("localhost:%d", cfg.OAuthPort),
		TokenPath:  cfg.TokenPath,
	})
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if addr := strings.TrimSpace(opts.ListenAddr); addr != "" {
		cfg.ListenAddr = addr
	}
	return cfg, nil
}

// newTokenStore tolerates missing client secrets so the kiosk can still
// drive the display; picker requests then fail with an auth error.
func newTokenStore(cfg config.Config) (*auth.Store, error) {
	oauthCfg, err := auth.LoadClientConfig(cfg.ClientSecretsPath, cfg.OAuthRedirectURL())
	switch {
	case errors.Is(err, auth.ErrClientSecretsMissing):
		log.Warn().Str("path", cfg.ClientSecretsPath).Msg("oauth client secrets missing, photo selection disabled")
		oauthCfg = nil
	case err != nil:
		return nil, err
	}
	return auth.NewStore(cfg.TokenPath, oauthCfg), nil
}

func configureLogging(cfg config.Config, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func newQueue(ctx context.Context, cfg config.Config) (queue.Queue, func(), error) {
	switch cfg.QueueBackend {
	case config.QueueRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DialTimeout: redisDialTimeout})
		q := queue.NewRedis(client, cfg.RedisKey)
		if err := q.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis queue: %w", err)
		}
		return q, func() { _ = client.Close() }, nil
	default:
		return queue.NewMemory(), func() {}, nil
	}
}

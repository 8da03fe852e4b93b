package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/five82/pikiosk/internal/picker"
)

const (
	DefaultPollInterval = 5 * time.Second
	MinPollInterval     = time.Second
	MaxPollDuration     = 15 * time.Minute
)

// Options tune polling and post-completion behaviour. Zero values use the defaults above.
type Options struct {
	DefaultPollInterval time.Duration
	MinPollInterval     time.Duration
	MaxPollDuration     time.Duration

	// PhotosDir receives downloaded media when non-empty.
	PhotosDir string
	// OnComplete runs after a session completes and its downloads finished.
	OnComplete func(snap Snapshot)
}

// Service creates picker sessions and keeps them polled until they settle.
type Service struct {
	api   picker.API
	store *Store
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	newRequestID func() string
	now          func() time.Time
}

// NewService builds a Service. Pollers live until ctx is cancelled or Shutdown is called.
func NewService(ctx context.Context, api picker.API, store *Store, opts Options) *Service {
	if opts.DefaultPollInterval <= 0 {
		opts.DefaultPollInterval = DefaultPollInterval
	}
	if opts.MinPollInterval <= 0 {
		opts.MinPollInterval = MinPollInterval
	}
	if opts.MaxPollDuration <= 0 {
		opts.MaxPollDuration = MaxPollDuration
	}
	if store == nil {
		store = NewStore()
	}
	base, cancel := context.WithCancel(ctx)
	return &Service{
		api:          api,
		store:        store,
		opts:         opts,
		ctx:          base,
		cancel:       cancel,
		newRequestID: uuid.NewString,
		now:          time.Now,
	}
}

// Store exposes the backing session store.
func (s *Service) Store() *Store {
	return s.store
}

// Create starts a remote picking session and begins polling it. maxItemCount
// of zero leaves the selection unbounded.
func (s *Service) Create(ctx context.Context, maxItemCount int64) (Snapshot, error) {
	var cfg *picker.PickingConfig
	if maxItemCount > 0 {
		cfg = &picker.PickingConfig{MaxItemCount: maxItemCount}
	}
	requestID := s.newRequestID()

	remote, err := s.api.CreateSession(ctx, requestID, cfg)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create picker session: %w", err)
	}

	now := s.now()
	snap := Snapshot{
		SessionID:    remote.ID,
		PickerURI:    remote.PickerURI,
		RequestID:    requestID,
		State:        StatePending,
		Remote:       *remote,
		CreatedAt:    now,
		Deadline:     now.Add(s.pollTimeout(remote.PollingConfig)),
		PollInterval: s.pollInterval(remote.PollingConfig),
	}
	if err := s.store.Insert(snap); err != nil {
		return Snapshot{}, fmt.Errorf("register session %s: %w", remote.ID, err)
	}
	log.Info().Str("session_id", remote.ID).Str("request_id", requestID).
		Dur("poll_interval", snap.PollInterval).Time("deadline", snap.Deadline).
		Msg("picker session created")

	if remote.MediaItemsSet && s.completeNow(ctx, remote.ID) {
		return s.store.Get(remote.ID)
	}
	s.Poll(remote.ID)
	return s.store.Get(remote.ID)
}

// Status returns the cached state of a session without calling the remote service.
func (s *Service) Status(id string) (Snapshot, error) {
	return s.store.Get(id)
}

// Delete drops the session locally, stops its poller and deletes it remotely.
// A remote 404 is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Delete(id); err != nil {
		return err
	}
	if err := s.api.DeleteSession(ctx, id); err != nil && !picker.IsNotFound(err) {
		return fmt.Errorf("delete picker session: %w", err)
	}
	log.Info().Str("session_id", id).Msg("picker session deleted")
	return nil
}

// Shutdown cancels all pollers and waits for them to exit.
func (s *Service) Shutdown() {
	s.cancel()
	s.store.CancelAll()
	s.wg.Wait()
}

// completeNow handles sessions the remote reports as already picked at creation.
func (s *Service) completeNow(ctx context.Context, id string) bool {
	items, err := s.api.ListMediaItems(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("media items not ready at creation, polling instead")
		return false
	}
	if !s.store.Complete(id, items) {
		return false
	}
	s.spawn(func(ctx context.Context) { s.afterComplete(ctx, id, items) })
	return true
}

func (s *Service) spawn(fn func(ctx context.Context)) bool {
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

func (s *Service) pollInterval(cfg picker.PollingConfig) time.Duration {
	interval, ok := picker.ParseDuration(cfg.PollInterval)
	if !ok {
		interval = s.opts.DefaultPollInterval
	}
	if interval < s.opts.MinPollInterval {
		interval = s.opts.MinPollInterval
	}
	return interval
}

func (s *Service) pollTimeout(cfg picker.PollingConfig) time.Duration {
	timeout, ok := picker.ParseDuration(cfg.TimeoutIn)
	if !ok || timeout <= 0 || timeout > s.opts.MaxPollDuration {
		return s.opts.MaxPollDuration
	}
	return timeout
}

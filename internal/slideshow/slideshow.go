// Package slideshow cycles downloaded photos on the display.
package slideshow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultInterval = 120 * time.Second

// Viewer shows a single photo fullscreen.
type Viewer interface {
	ShowPhoto(ctx context.Context, path string) error
	StopViewer(ctx context.Context) error
}

// Slideshow shows a random photo from dir on every tick or trigger.
type Slideshow struct {
	dir      string
	viewer   Viewer
	interval time.Duration
	pick     func(n int) int

	mu      sync.Mutex
	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a stopped slideshow over dir.
func New(dir string, viewer Viewer, interval time.Duration) *Slideshow {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Slideshow{
		dir:      dir,
		viewer:   viewer,
		interval: interval,
		pick:     rand.Intn,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the loop, or asks a running loop to advance immediately.
func (s *Slideshow) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Trigger()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(loopCtx, done)
}

// Trigger advances to the next photo without waiting for the interval.
func (s *Slideshow) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether the loop is active.
func (s *Slideshow) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stop ends the loop and closes the viewer.
func (s *Slideshow) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return s.viewer.StopViewer(ctx)
}

// Photos lists the files currently available to the slideshow, sorted.
func (s *Slideshow) Photos() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list photos: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Slideshow) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	log.Info().Str("dir", s.dir).Dur("interval", s.interval).Msg("slideshow started")
	defer log.Info().Msg("slideshow stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-ticker.C:
		}
		s.advance(ctx)
	}
}

func (s *Slideshow) advance(ctx context.Context) {
	photos, err := s.Photos()
	if err != nil {
		log.Warn().Err(err).Msg("slideshow listing failed")
		return
	}
	if len(photos) == 0 {
		return
	}
	photo := photos[s.pick(len(photos))]
	if err := s.viewer.ShowPhoto(ctx, photo); err != nil {
		log.Warn().Err(err).Str("photo", photo).Msg("slideshow display failed")
	}
}

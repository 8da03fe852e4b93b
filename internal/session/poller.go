package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/five82/pikiosk/internal/auth"
	"github.com/five82/pikiosk/internal/picker"
)

// Poll launches the background poller for a pending session. It returns
// false without doing anything when the session is unknown, already
// terminal, or already being polled.
func (s *Service) Poll(id string) bool {
	snap, err := s.store.Get(id)
	if err != nil || snap.State.Terminal() {
		return false
	}
	if s.ctx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	if !s.store.attachPoller(id, cancel) {
		cancel()
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.store.detachPoller(id)
		defer cancel()
		s.poll(ctx, snap)
	}()
	return true
}

// poll runs until the session settles, its deadline passes, or ctx is cancelled.
// Polls are spaced at least snap.PollInterval apart.
func (s *Service) poll(parent context.Context, snap Snapshot) {
	id := snap.SessionID
	ctx, cancel := context.WithDeadline(parent, snap.Deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(snap.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// The next slot lies past the deadline; sit out the remainder.
			<-ctx.Done()
			break
		}
		if s.pollOnce(ctx, id) {
			return
		}
	}

	if parent.Err() != nil {
		return
	}
	if s.store.Expire(id) {
		log.Info().Str("session_id", id).Time("deadline", snap.Deadline).Msg("picker session timed out")
	}
}

// pollOnce performs one remote check and reports whether polling should stop.
func (s *Service) pollOnce(ctx context.Context, id string) bool {
	remote, err := s.api.GetSession(ctx, id)
	if err != nil {
		return s.handlePollError(ctx, id, err)
	}
	if !s.store.RecordPoll(id, *remote) {
		return true
	}
	if !remote.MediaItemsSet {
		return false
	}

	items, err := s.api.ListMediaItems(ctx, id)
	if err != nil {
		if picker.IsFailedPrecondition(err) {
			return false
		}
		return s.handlePollError(ctx, id, err)
	}
	if s.store.Complete(id, items) {
		log.Info().Str("session_id", id).Int("media_items", len(items)).Msg("picker session complete")
		s.afterComplete(s.ctx, id, items)
	}
	return true
}

func (s *Service) handlePollError(ctx context.Context, id string, err error) bool {
	if ctx.Err() != nil || temporary(err) {
		log.Debug().Err(err).Str("session_id", id).Msg("poll failed, retrying next interval")
		return false
	}
	info := ErrorInfo{Message: err.Error()}
	var apiErr *picker.APIError
	if errors.As(err, &apiErr) {
		info.Message = apiErr.Message
		info.Status = apiErr.Status
		info.StatusCode = apiErr.StatusCode
	}
	if s.store.Fail(id, info) {
		log.Warn().Err(err).Str("session_id", id).Msg("picker session failed")
	}
	return true
}

// temporary separates transient transport trouble from errors the remote
// service reports about the session itself.
func temporary(err error) bool {
	var apiErr *picker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !auth.IsAuthError(err)
}

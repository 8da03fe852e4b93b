package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/five82/pikiosk/internal/picker"
	"github.com/five82/pikiosk/internal/session"
)

const maxBodyBytes = 1 << 20

type statusResponse struct {
	Status string `json:"status"`
}

type createSessionRequest struct {
	MaxItemCount *int64 `json:"maxItemCount"`
}

type createSessionResponse struct {
	SessionID      string        `json:"sessionId"`
	PickerURI      string        `json:"pickerUri"`
	Status         session.State `json:"status"`
	StatusEndpoint string        `json:"statusEndpoint"`
}

// sessionView is the GET /selectPhotos body. Pointer fields are omitted
// outside the states where they mean something.
type sessionView struct {
	SessionID            string              `json:"sessionId"`
	State                session.State       `json:"state"`
	PickerURI            string              `json:"pickerUri"`
	RequestID            string              `json:"requestId,omitempty"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
	LastPolledAt         *time.Time          `json:"lastPolledAt,omitempty"`
	CompletedAt          *time.Time          `json:"completedAt,omitempty"`
	PollingDeadline      *time.Time          `json:"pollingDeadline,omitempty"`
	PollIntervalSeconds  *float64            `json:"pollIntervalSeconds,omitempty"`
	MediaItems           *[]picker.MediaItem `json:"mediaItems,omitempty"`
	MediaItemsCount      int                 `json:"mediaItemsCount"`
	Error                *session.ErrorInfo  `json:"error,omitempty"`
	DownloadedFiles      []string            `json:"downloadedFiles,omitempty"`
	DownloadedFilesCount int                 `json:"downloadedFilesCount"`
}

func newSessionView(snap session.Snapshot) sessionView {
	v := sessionView{
		SessionID:            snap.SessionID,
		State:                snap.State,
		PickerURI:            snap.PickerURI,
		RequestID:            snap.RequestID,
		CreatedAt:            snap.CreatedAt,
		UpdatedAt:            snap.UpdatedAt,
		LastPolledAt:         optionalTime(snap.LastPolledAt),
		CompletedAt:          optionalTime(snap.CompletedAt),
		MediaItemsCount:      len(snap.MediaItems),
		Error:                snap.Error,
		DownloadedFiles:      snap.DownloadedFiles,
		DownloadedFilesCount: len(snap.DownloadedFiles),
	}
	switch snap.State {
	case session.StatePending:
		secs := snap.PollInterval.Seconds()
		v.PollIntervalSeconds = &secs
		v.PollingDeadline = optionalTime(snap.Deadline)
	case session.StateComplete:
		items := snap.MediaItems
		if items == nil {
			items = []picker.MediaItem{}
		}
		v.MediaItems = &items
	}
	return v
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func parseSwitch(req *http.Request) (bool, error) {
	switch cmd := req.URL.Query().Get("cmd"); cmd {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, validation(fmt.Sprintf("cmd must be on or off, got %q", cmd))
	}
}

func (s *Server) handleDisplay(w http.ResponseWriter, req *http.Request) {
	on, err := parseSwitch(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Display.SetPower(req.Context(), on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("display power change failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "display " + onOff(on)})
}

func (s *Server) handleScreensaver(w http.ResponseWriter, req *http.Request) {
	on, err := parseSwitch(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if on {
		s.opts.Screensaver.Start(s.opts.BaseContext)
	} else if err := s.opts.Screensaver.Stop(req.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "screensaver " + onOff(on)})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (s *Server) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		writeError(w, err)
		return
	}
	var in createSessionRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			writeError(w, validation("invalid JSON body: "+err.Error()))
			return
		}
	}
	var maxItems int64
	if in.MaxItemCount != nil {
		if *in.MaxItemCount < 0 {
			writeError(w, validation("maxItemCount must not be negative"))
			return
		}
		maxItems = *in.MaxItemCount
	}

	snap, err := s.opts.Sessions.Create(req.Context(), maxItems)
	if err != nil {
		log.Error().Err(err).Msg("create picker session failed")
		writeError(w, classify(err, true))
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:      snap.SessionID,
		PickerURI:      snap.PickerURI,
		Status:         snap.State,
		StatusEndpoint: "/selectPhotos?sessionId=" + url.QueryEscape(snap.SessionID),
	})
}

func sessionID(req *http.Request) (string, error) {
	id := strings.TrimSpace(req.URL.Query().Get("sessionId"))
	if id == "" {
		return "", validation("sessionId is required")
	}
	return id, nil
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, req *http.Request) {
	id, err := sessionID(req)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.opts.Sessions.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(snap))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, req *http.Request) {
	id, err := sessionID(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Sessions.Delete(req.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, err)
			return
		}
		// The local entry is already gone; only the remote cleanup failed.
		log.Warn().Err(err).Str("session_id", id).Msg("remote session delete failed")
		writeError(w, classify(err, true))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

func (s *Server) handlePublish(w http.ResponseWriter, req *http.Request) {
	body, err := readBody(req)
	if err != nil {
		writeError(w, err)
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		writeError(w, validation("body must be valid JSON"))
		return
	}
	if err := s.opts.Queue.Publish(req.Context(), json.RawMessage(body)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	payload, ok, err := s.opts.Queue.Subscribe(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{Status: "empty"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func readBody(req *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil {
		return nil, validation("read body: " + err.Error())
	}
	if len(body) > maxBodyBytes {
		return nil, &httpError{status: http.StatusRequestEntityTooLarge, kind: KindValidation, message: "body too large"}
	}
	return body, nil
}

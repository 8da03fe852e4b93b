package picker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Session mirrors the PickingSession resource.
type Session struct {
	ID            string        `json:"id"`
	PickerURI     string        `json:"pickerUri"`
	PollingConfig PollingConfig `json:"pollingConfig"`
	ExpireTime    string        `json:"expireTime,omitempty"`
	MediaItemsSet bool          `json:"mediaItemsSet"`
}

// PollingConfig carries the remote polling advice for a session.
type PollingConfig struct {
	PollInterval string `json:"pollInterval,omitempty"`
	TimeoutIn    string `json:"timeoutIn,omitempty"`
}

// PickingConfig limits what the user may select.
type PickingConfig struct {
	MaxItemCount int64 `json:"maxItemCount,string,omitempty"`
}

type createSessionRequest struct {
	PickingConfig *PickingConfig `json:"pickingConfig,omitempty"`
}

// MediaItemsPage mirrors a page of /mediaItems.
type MediaItemsPage struct {
	MediaItems    []MediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

// MediaItem describes one picked photo or video.
type MediaItem struct {
	ID         string    `json:"id"`
	CreateTime string    `json:"createTime,omitempty"`
	Type       string    `json:"type,omitempty"`
	MediaFile  MediaFile `json:"mediaFile"`
}

// MediaFile holds the downloadable file behind a MediaItem.
type MediaFile struct {
	BaseURL           string          `json:"baseUrl"`
	MimeType          string          `json:"mimeType,omitempty"`
	Filename          string          `json:"filename,omitempty"`
	MediaFileMetadata json.RawMessage `json:"mediaFileMetadata,omitempty"`
}

// BaseURL returns the trimmed download base URL.
func (m MediaItem) BaseURL() string {
	return strings.TrimSpace(m.MediaFile.BaseURL)
}

// APIError represents an error payload returned by the picker API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("picker api error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("picker api error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same call later may succeed.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

const statusFailedPrecondition = "FAILED_PRECONDITION"

// IsFailedPrecondition reports whether err is the API's "items not ready yet" answer.
func IsFailedPrecondition(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == statusFailedPrecondition
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type errorEnvelope struct {
	Error struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Status  string          `json:"status"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// ParseDuration decodes protobuf-style durations such as "5s" or "1.5s".
// It returns false when value is empty or malformed; negative values clamp to zero.
func ParseDuration(value string) (time.Duration, bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasSuffix(trimmed, "s") {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "s"), 64)
	if err != nil {
		return 0, false
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second)), true
}

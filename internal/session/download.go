package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/five82/pikiosk/internal/picker"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// afterComplete downloads media when configured and notifies OnComplete.
func (s *Service) afterComplete(ctx context.Context, id string, items []picker.MediaItem) {
	if s.opts.PhotosDir != "" {
		files := s.download(ctx, id, items)
		s.store.SetDownloaded(id, files)
	}
	if s.opts.OnComplete == nil {
		return
	}
	snap, err := s.store.Get(id)
	if err != nil {
		return
	}
	s.opts.OnComplete(snap)
}

// download writes each item into PhotosDir and returns the file names that
// are present afterwards. Existing files are not fetched again.
func (s *Service) download(ctx context.Context, id string, items []picker.MediaItem) []string {
	if len(items) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.opts.PhotosDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", s.opts.PhotosDir).Msg("create photos dir failed")
		return nil
	}

	var files []string
	for i, item := range items {
		if item.BaseURL() == "" {
			continue
		}
		name := mediaFilename(id, i+1, item)
		path := filepath.Join(s.opts.PhotosDir, name)
		if _, err := os.Stat(path); err == nil {
			files = append(files, name)
			continue
		}
		if err := s.downloadTo(ctx, item, path); err != nil {
			log.Warn().Err(err).Str("session_id", id).Str("media_item", item.ID).Msg("media download failed")
			continue
		}
		files = append(files, name)
	}
	return files
}

func (s *Service) downloadTo(ctx context.Context, item picker.MediaItem, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	dlErr := s.api.Download(ctx, item, tmp)
	closeErr := tmp.Close()
	if err := errors.Join(dlErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store media: %w", err)
	}
	return nil
}

func mediaFilename(sessionID string, index int, item picker.MediaItem) string {
	name := strings.TrimSpace(item.MediaFile.Filename)
	if name == "" {
		name = fmt.Sprintf("%s_%d", sessionID, index)
	}
	name = sanitizeFilename(name)
	if filepath.Ext(name) == "" {
		name += extensionForMime(item.MediaFile.MimeType)
	}
	return name
}

func sanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(name, "_")
	if sanitized == "" || strings.Trim(sanitized, ".") == "" {
		return "photo"
	}
	return sanitized
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic", "image/heif":
		return ".heic"
	}
	if strings.HasPrefix(mimeType, "video/") {
		return ".mp4"
	}
	return ""
}

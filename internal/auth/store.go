// Package auth owns the OAuth credential used to call the picker API.
// Tokens are persisted as JSON next to the client secrets and refreshed
// transparently; a missing or unrefreshable token means the operator has to
// run `pikiosk authorize` once.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// PickerScope is the read-only scope needed by the picker API.
const PickerScope = "https://www.googleapis.com/auth/photospicker.mediaitems.readonly"

var (
	// ErrAuthorizationRequired means no usable credential exists and the
	// interactive authorization flow must be completed.
	ErrAuthorizationRequired = errors.New("picker authorization required: run `pikiosk authorize`")
	// ErrClientSecretsMissing means the OAuth client secrets file was not found.
	ErrClientSecretsMissing = errors.New("oauth client secrets not found")
)

// LoadClientConfig reads Google OAuth client secrets and points the redirect
// at the local authorization listener.
func LoadClientConfig(secretsPath, redirectURL string) (*oauth2.Config, error) {
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrClientSecretsMissing, secretsPath)
		}
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, PickerScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// Store caches, refreshes and persists the picker credential.
type Store struct {
	path   string
	config *oauth2.Config

	mu    sync.Mutex
	token *oauth2.Token
}

// NewStore builds a Store persisting to tokenPath. config may be nil when
// client secrets are unavailable; refreshes and authorization then fail with
// ErrClientSecretsMissing.
func NewStore(tokenPath string, config *oauth2.Config) *Store {
	return &Store{path: tokenPath, config: config}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Token returns a valid credential, refreshing and persisting it when expired.
func (s *Store) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && s.token.Valid() {
		return s.token, nil
	}

	tok := s.token
	if tok == nil {
		loaded, err := s.load()
		if err != nil {
			return nil, err
		}
		tok = loaded
	}
	if tok.Valid() {
		s.token = tok
		return tok, nil
	}

	if tok.RefreshToken == "" {
		return nil, ErrAuthorizationRequired
	}
	if s.config == nil {
		return nil, ErrClientSecretsMissing
	}
	refreshed, err := s.config.TokenSource(ctx, tok).Token()
	if err != nil {
		s.token = nil
		return nil, fmt.Errorf("%w: refresh failed: %v", ErrAuthorizationRequired, err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	if err := s.persist(refreshed); err != nil {
		return nil, err
	}
	s.token = refreshed
	return refreshed, nil
}

// Save stores a freshly issued credential, replacing any cached one.
func (s *Store) Save(tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("token is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(tok); err != nil {
		return err
	}
	s.token = tok
	return nil
}

// Invalidate drops the cached credential so the next Token call rereads the file.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// HTTPClient returns a client that authorizes requests with the stored credential.
func (s *Store) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	src := oauth2.ReuseTokenSource(tok, storeSource{ctx: ctx, store: s})
	return oauth2.NewClient(ctx, src), nil
}

type storeSource struct {
	ctx   context.Context
	store *Store
}

func (s storeSource) Token() (*oauth2.Token, error) {
	return s.store.Token(s.ctx)
}

func (s *Store) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrAuthorizationRequired
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("%w: stored token unreadable: %v", ErrAuthorizationRequired, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrAuthorizationRequired
	}
	return &tok, nil
}

func (s *Store) persist(tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token: %w", err)
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Flow is one run of the interactive authorization-code flow.
type Flow struct {
	store    *Store
	state    string
	verifier string
}

// NewFlow prepares an authorization attempt with a fresh state and PKCE verifier.
func (s *Store) NewFlow() (*Flow, error) {
	if s.config == nil {
		return nil, ErrClientSecretsMissing
	}
	return &Flow{
		store:    s,
		state:    uuid.NewString(),
		verifier: oauth2.GenerateVerifier(),
	}, nil
}

// URL is the consent page the operator opens in a browser.
func (f *Flow) URL() string {
	return f.store.config.AuthCodeURL(f.state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(f.verifier),
	)
}

// State returns the anti-forgery token embedded in URL.
func (f *Flow) State() string {
	return f.state
}

// Exchange trades an authorization code for a token and persists it.
func (f *Flow) Exchange(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("authorization code is empty")
	}
	tok, err := f.store.config.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	return f.store.Save(tok)
}

// ParseCode accepts either a bare code or the full redirect URL pasted from
// the browser address bar.
func (f *Flow) ParseCode(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("input is empty")
	}
	if !strings.Contains(trimmed, "://") {
		return trimmed, nil
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	return f.codeFromQuery(u.Query())
}

func (f *Flow) codeFromQuery(q url.Values) (string, error) {
	if msg := q.Get("error"); msg != "" {
		return "", fmt.Errorf("authorization denied: %s", msg)
	}
	if q.Get("state") != f.state {
		return "", fmt.Errorf("state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect carried no code")
	}
	return code, nil
}

// CallbackHandler serves the loopback redirect and forwards the code (or the
// failure) on results. The send never blocks the handler.
func (f *Flow) CallbackHandler(results chan<- CallbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		code, err := f.codeFromQuery(r.URL.Query())
		select {
		case results <- CallbackResult{Code: code, Err: err}:
		default:
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Authorization received. You can close this tab.\n"))
	})
}

// CallbackResult is what the loopback listener observed.
type CallbackResult struct {
	Code string
	Err  error
}

// ReceiveCode listens on addr until the browser is redirected back with a
// code or ctx is cancelled.
func (f *Flow) ReceiveCode(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen for oauth redirect: %w", err)
	}
	results := make(chan CallbackResult, 1)
	srv := &http.Server{
		Handler:           f.CallbackHandler(results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Code, nil
	}
}

// IsAuthError reports whether err means the credential is missing or unusable.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthorizationRequired) || errors.Is(err, ErrClientSecretsMissing)
}

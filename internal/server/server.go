// Package server is the kiosk's HTTP control surface.
//
// Routes are registered on a gorilla/mux router:
//
//	GET    /                              control page
//	GET    /display?cmd=on|off            display power
//	GET    /screensaver?cmd=on|off        photo slideshow
//	POST   /selectPhotos                  create a picker session
//	GET    /selectPhotos?sessionId=<id>   cached session state
//	DELETE /selectPhotos?sessionId=<id>   drop a session
//	POST   /publish                       enqueue a JSON message
//	GET    /subscribe                     dequeue the oldest message
//
// Every failure is answered with {"error":{"kind":...,"message":...}} and a
// status derived from the kind.
package server

import (
	"context"
	"embed"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/five82/pikiosk/internal/queue"
	"github.com/five82/pikiosk/internal/session"
)

//go:embed static/index.html
var static embed.FS

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Sessions is the picker session lifecycle used by the handlers.
type Sessions interface {
	Create(ctx context.Context, maxItemCount int64) (session.Snapshot, error)
	Status(id string) (session.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Display switches the panel on or off.
type Display interface {
	SetPower(ctx context.Context, on bool) error
}

// Screensaver cycles photos while the kiosk is idle.
type Screensaver interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Running() bool
}

var _ Sessions = (*session.Service)(nil)

// Options wires the server's collaborators.
type Options struct {
	Addr        string
	Sessions    Sessions
	Queue       queue.Queue
	Display     Display
	Screensaver Screensaver
	// BaseContext outlives individual requests. Background work started by
	// a handler, such as the slideshow loop, runs under it.
	BaseContext context.Context
}

// Server routes kiosk requests to its collaborators.
type Server struct {
	opts   Options
	router *mux.Router
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	s := &Server{opts: opts, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the root handler including request logging.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestLogger)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, notFound("no such route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, &httpError{status: http.StatusMethodNotAllowed, kind: "MethodNotAllowed", message: req.Method + " not allowed"})
	})

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/display", s.handleDisplay).Methods(http.MethodGet)
	r.HandleFunc("/screensaver", s.handleScreensaver).Methods(http.MethodGet)
	r.HandleFunc("/selectPhotos", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/selectPhotos", s.handleSessionStatus).Methods(http.MethodGet)
	r.HandleFunc("/selectPhotos", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/publish", s.handlePublish).Methods(http.MethodPost)
	r.HandleFunc("/subscribe", s.handleSubscribe).Methods(http.MethodGet)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

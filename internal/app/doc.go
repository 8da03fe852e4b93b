// Package app is the composition root for pikiosk.
//
// # Overview
//
// This package wires configuration, logging, the OAuth token store, the
// picker client, session polling, the display invoker, the slideshow, the
// message queue and the HTTP server into one process. Domain behaviour lives
// in the packages it connects.
//
// # Serve
//
//	┌──────────────┐
//	│   Run()      │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()          Read ~/.config/pikiosk/config.toml
//	       ├─────> configureLogging()     zerolog level and writer
//	       ├─────> auth.NewStore()        Token store (+ fsnotify watch)
//	       ├─────> picker.NewClient()     Authorized picker API client
//	       ├─────> display.NewInvoker()   xset / feh wrapper
//	       ├─────> slideshow.New()        Photo loop over <storage>/photos
//	       ├─────> session.NewService()   Pollers; completion starts slideshow
//	       ├─────> newQueue()             memory or redis backend
//	       └─────> server.ListenAndServe() Blocks until ctx is cancelled
//
// On cancellation the HTTP server drains, every poller is cancelled and
// awaited, and a running slideshow is stopped.
//
// # Authorize
//
// Authorize loads the client secrets, starts an auth.Flow and hands it to
// the ui package. The token file it writes is picked up by a running server
// through the token store's file watch.
//
// # Error Handling
//
// Fatal (returned from Run):
//   - Invalid configuration file
//   - Storage directory cannot be created
//   - Unreadable or malformed client secrets
//   - Redis backend selected but unreachable
//   - HTTP listener failure
//
// Tolerated (logged):
//   - Missing client secrets; display and queue still work and photo
//     selection answers with an auth error
//   - Token file watch cannot be installed
package app

// Package session tracks remote picker sessions and polls them to completion.
//
// # Overview
//
// A picker session is created remotely, handed to the operator as a URL, and
// completed out-of-band on a phone. This package creates the session, keeps
// a cached copy in a Store, and runs one background poller per session that
// checks the remote service until the selection is done, the remote reports
// an error, or the polling deadline passes.
//
// # Architecture
//
//	HTTP handler                     Poller goroutine (one per session)
//	┌──────────────────┐            ┌──────────────────────────────┐
//	│ Service.Create() │──spawn────→│ limiter.Wait(ctx)            │
//	│                  │            │ api.GetSession()             │
//	│ Service.Status() │            │ store.RecordPoll()           │
//	│      ↓           │            │ mediaItemsSet?               │
//	│ store.Get()      │←──(mutex)──│   api.ListMediaItems()       │
//	└──────────────────┘            │   store.Complete()           │
//	                                │   download + OnComplete      │
//	                                └──────────────────────────────┘
//
// # State Machine
//
//	PENDING ──→ COMPLETE   remote set mediaItemsSet and items were listed
//	        ──→ ERROR      remote answered with a non-transient error
//	        ──→ TIMEOUT    the polling deadline passed
//
// Transitions happen inside the Store under its lock and only from PENDING,
// so a session leaves PENDING at most once and never returns. MediaItems is
// set only by the COMPLETE transition.
//
// # Polling Behavior
//
//   - Interval: remote pollingConfig.pollInterval, default 5s, at least 1s
//   - Deadline: creation time + min(pollingConfig.timeoutIn, 15m)
//   - Spacing: a golang.org/x/time/rate limiter with burst 1 guarantees
//     consecutive polls are at least one interval apart
//   - Transient failures (network errors, 5xx, 408, 429) are logged and the
//     next interval is awaited; FAILED_PRECONDITION while listing media items
//     means "not ready yet"
//   - Other API errors and credential failures settle the session in ERROR
//   - Once the next slot would fall after the deadline the poller waits for
//     the deadline itself and then records TIMEOUT; no remote call is made
//     after that
//
// # Cancellation
//
// Each poller runs under a context derived from the Service's base context.
// Delete cancels one poller; Shutdown cancels all of them and waits. A
// cancelled poller leaves the session state alone.
//
// # Known Gap
//
// Sessions are never evicted. The map grows by one entry per picker
// session for the life of the process.
package session

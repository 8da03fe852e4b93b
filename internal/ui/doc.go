// Package ui implements the interactive `pikiosk authorize` screen.
//
// # Overview
//
// Authorizing the kiosk is a one-off step done over SSH or on the Pi's own
// terminal. The screen shows the consent URL, then waits for the OAuth
// redirect on the loopback listener. When the browser that completes the
// consent runs on another machine the redirect cannot reach the kiosk, so
// the operator can paste either the bare code or the whole redirect URL
// into the text input instead.
//
// # Model
//
// Model is a Bubble Tea model with three phases:
//
//	waiting     spinner + text input, loopback listener running
//	exchanging  code received, token exchange in flight
//	done        token saved (or a fatal error), program quits
//
// Messages:
//
//   - codeMsg: the loopback listener returned a code or an error
//   - exchangedMsg: the token exchange finished
//
// A listener error does not end the screen; pasting a code still works.
// Esc or Ctrl+C aborts and Run returns ErrAborted.
//
// # Styling
//
// Colors come from a small Theme rendered through lipgloss. Nightfox is the
// default.
package ui

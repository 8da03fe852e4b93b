// Package picker provides an HTTP client for the Google Photos Picker API.
//
// # Architecture
//
//   - client.go: HTTP client implementation and request/response handling
//   - types.go: Data structures mirroring the picker API schema
//
// # Client Usage
//
// The client does not own credentials. It asks an HTTPClientSource for an
// authorized *http.Client on every request, so a token refreshed by the auth
// package is used immediately:
//
//	client, err := picker.NewClient(cfg.PickerBaseURL, tokenStore)
//	if err != nil {
//		return err
//	}
//	session, err := client.CreateSession(ctx, uuid.NewString(), nil)
//
// # API Endpoints
//
//   - POST /sessions?requestId=: create a picking session
//   - GET /sessions/{id}: poll a session (mediaItemsSet flips when done)
//   - GET /mediaItems?sessionId=&pageSize=100&pageToken=: list picked items
//   - DELETE /sessions/{id}: drop a session
//   - GET <baseUrl>=d: download the original media bytes
//
// # Error Handling
//
// Status codes >= 400 are decoded into *APIError carrying the HTTP status and
// the API's status string (e.g. FAILED_PRECONDITION). Temporary reports
// whether a later retry may succeed (5xx, 408, 429). Network failures and
// credential failures are returned as wrapped errors.
package picker

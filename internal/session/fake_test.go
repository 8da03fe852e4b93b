package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/five82/pikiosk/internal/picker"
)

// fakeAPI is a scripted picker.API.
type fakeAPI struct {
	mu sync.Mutex

	nextID       int
	fixedID      string
	pollInterval string
	timeoutIn    string
	createSet    bool
	createErr    error

	// getFn answers the n-th (1-based) GetSession call for id.
	getFn func(id string, n int) (*picker.Session, error)
	// listFn answers the n-th ListMediaItems call.
	listFn func(id string, n int) ([]picker.MediaItem, error)

	getCalls   map[string][]time.Time
	listCalls  int
	deleted    []string
	deleteErr  error
	downloaded []string
	content    map[string]string
}

var _ picker.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pollInterval: "0.02s",
		getCalls:     make(map[string][]time.Time),
		content:      make(map[string]string),
	}
}

func (f *fakeAPI) CreateSession(_ context.Context, requestID string, _ *picker.PickingConfig) (*picker.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.fixedID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("s%d", f.nextID)
	}
	return &picker.Session{
		ID:            id,
		PickerURI:     "https://picker.example/" + id,
		PollingConfig: picker.PollingConfig{PollInterval: f.pollInterval, TimeoutIn: f.timeoutIn},
		MediaItemsSet: f.createSet,
	}, nil
}

func (f *fakeAPI) GetSession(ctx context.Context, id string) (*picker.Session, error) {
	f.mu.Lock()
	f.getCalls[id] = append(f.getCalls[id], time.Now())
	n := len(f.getCalls[id])
	fn := f.getFn
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return &picker.Session{ID: id}, nil
	}
	return fn(id, n)
}

func (f *fakeAPI) ListMediaItems(_ context.Context, id string) ([]picker.MediaItem, error) {
	f.mu.Lock()
	f.listCalls++
	n := f.listCalls
	fn := f.listFn
	f.mu.Unlock()

	if fn == nil {
		return []picker.MediaItem{{ID: id + "-m1"}}, nil
	}
	return fn(id, n)
}

func (f *fakeAPI) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeAPI) Download(_ context.Context, item picker.MediaItem, w io.Writer) error {
	f.mu.Lock()
	body, ok := f.content[item.BaseURL()]
	f.downloaded = append(f.downloaded, item.ID)
	f.mu.Unlock()
	if !ok {
		return &picker.APIError{StatusCode: 404, Message: "gone"}
	}
	_, err := io.WriteString(w, body)
	return err
}

func (f *fakeAPI) polls(id string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.getCalls[id]...)
}

func (f *fakeAPI) pollCount(id string) int {
	return len(f.polls(id))
}

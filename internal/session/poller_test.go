package session

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/five82/pikiosk/internal/auth"
	"github.com/five82/pikiosk/internal/picker"
)

func newTestService(t *testing.T, api *fakeAPI, opts Options) *Service {
	t.Helper()
	if opts.MinPollInterval == 0 {
		opts.MinPollInterval = time.Millisecond
	}
	svc := NewService(context.Background(), api, NewStore(), opts)
	t.Cleanup(svc.Shutdown)
	return svc
}

func waitForState(t *testing.T, svc *Service, id string, want State) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = svc.Status(id)
		return err == nil && snap.State == want
	}, 3*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)
	return snap
}

func TestCreate_StoresPendingSessionWithDeadline(t *testing.T) {
	api := newFakeAPI()
	api.pollInterval = ""
	svc := newTestService(t, api, Options{MinPollInterval: time.Second})

	before := time.Now()
	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, "s1", snap.SessionID)
	require.Equal(t, StatePending, snap.State)
	require.Equal(t, "https://picker.example/s1", snap.PickerURI)
	require.NotEmpty(t, snap.RequestID)
	require.Equal(t, DefaultPollInterval, snap.PollInterval)
	require.WithinDuration(t, before.Add(MaxPollDuration), snap.Deadline, time.Second)
	require.Empty(t, snap.MediaItems)
}

func TestCreate_IssuesUniqueIDs(t *testing.T) {
	api := newFakeAPI()
	svc := newTestService(t, api, Options{})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		snap, err := svc.Create(context.Background(), 3)
		require.NoError(t, err)
		require.False(t, seen[snap.SessionID], "id %s issued twice", snap.SessionID)
		seen[snap.SessionID] = true
	}
	require.Equal(t, 5, svc.Store().Len())
}

func TestCreate_RejectsReusedRemoteID(t *testing.T) {
	api := newFakeAPI()
	api.fixedID = "same"
	svc := newTestService(t, api, Options{})

	_, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 0)
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, 1, svc.Store().Len())
}

func TestCreate_FailureStoresNothing(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &picker.APIError{StatusCode: http.StatusBadGateway, Message: "down"}
	svc := newTestService(t, api, Options{})

	_, err := svc.Create(context.Background(), 0)
	var apiErr *picker.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Zero(t, svc.Store().Len())
}

func TestCreate_RemoteIntervalAndTimeoutAreClamped(t *testing.T) {
	api := newFakeAPI()
	api.pollInterval = "0.1s"
	api.timeoutIn = "3600s"
	svc := newTestService(t, api, Options{MinPollInterval: time.Second})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, time.Second, snap.PollInterval)
	require.WithinDuration(t, snap.CreatedAt.Add(MaxPollDuration), snap.Deadline, time.Millisecond)

	api.pollInterval = "7s"
	api.timeoutIn = "60s"
	snap, err = svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 7*time.Second, snap.PollInterval)
	require.WithinDuration(t, snap.CreatedAt.Add(time.Minute), snap.Deadline, time.Millisecond)
}

func TestStatus_UnknownIsNotFound(t *testing.T) {
	svc := newTestService(t, newFakeAPI(), Options{})
	_, err := svc.Status("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPoll_CompletesWhenRemoteFinishes(t *testing.T) {
	api := newFakeAPI()
	api.getFn = func(id string, n int) (*picker.Session, error) {
		return &picker.Session{ID: id, MediaItemsSet: n >= 3}, nil
	}
	api.listFn = func(string, int) ([]picker.MediaItem, error) {
		return []picker.MediaItem{{ID: "m1"}, {ID: "m2"}}, nil
	}
	var completed atomic.Int32
	svc := newTestService(t, api, Options{OnComplete: func(Snapshot) { completed.Add(1) }})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, StatePending, snap.State)

	done := waitForState(t, svc, snap.SessionID, StateComplete)
	require.Len(t, done.MediaItems, 2)
	require.False(t, done.CompletedAt.IsZero())
	require.False(t, done.LastPolledAt.IsZero())
	require.Eventually(t, func() bool { return completed.Load() == 1 }, time.Second, 5*time.Millisecond)

	polls := api.pollCount(snap.SessionID)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, polls, api.pollCount(snap.SessionID), "no polling after COMPLETE")

	final, _ := svc.Status(snap.SessionID)
	require.Equal(t, StateComplete, final.State)
}

func TestPoll_SpacesPollsByInterval(t *testing.T) {
	api := newFakeAPI()
	api.pollInterval = "0.05s"
	api.getFn = func(id string, n int) (*picker.Session, error) {
		return &picker.Session{ID: id, MediaItemsSet: n >= 4}, nil
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	waitForState(t, svc, snap.SessionID, StateComplete)

	polls := api.polls(snap.SessionID)
	require.Len(t, polls, 4)
	for i := 1; i < len(polls); i++ {
		gap := polls[i].Sub(polls[i-1])
		require.GreaterOrEqual(t, gap, 45*time.Millisecond, "poll %d came %v after previous", i, gap)
	}
}

func TestPoll_RemoteErrorSettlesInError(t *testing.T) {
	api := newFakeAPI()
	api.getFn = func(string, int) (*picker.Session, error) {
		return nil, &picker.APIError{StatusCode: http.StatusForbidden, Status: "PERMISSION_DENIED", Message: "denied"}
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)

	failed := waitForState(t, svc, snap.SessionID, StateError)
	require.NotNil(t, failed.Error)
	require.Equal(t, "denied", failed.Error.Message)
	require.Equal(t, "PERMISSION_DENIED", failed.Error.Status)
	require.Equal(t, http.StatusForbidden, failed.Error.StatusCode)
	require.Empty(t, failed.MediaItems)

	polls := api.pollCount(snap.SessionID)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, polls, api.pollCount(snap.SessionID))
}

func TestPoll_AuthFailureSettlesInError(t *testing.T) {
	api := newFakeAPI()
	api.getFn = func(string, int) (*picker.Session, error) {
		return nil, auth.ErrAuthorizationRequired
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	failed := waitForState(t, svc, snap.SessionID, StateError)
	require.Contains(t, failed.Error.Message, "authorization required")
}

func TestPoll_TransientFailuresAreRetried(t *testing.T) {
	api := newFakeAPI()
	api.getFn = func(id string, n int) (*picker.Session, error) {
		switch n {
		case 1:
			return nil, errors.New("execute request: connection refused")
		case 2:
			return nil, &picker.APIError{StatusCode: http.StatusServiceUnavailable, Message: "busy"}
		case 3:
			return nil, &picker.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
		}
		return &picker.Session{ID: id, MediaItemsSet: true}, nil
	}
	api.listFn = func(_ string, n int) ([]picker.MediaItem, error) {
		if n == 1 {
			return nil, &picker.APIError{StatusCode: http.StatusBadRequest, Status: "FAILED_PRECONDITION", Message: "not yet"}
		}
		return []picker.MediaItem{{ID: "m1"}}, nil
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	done := waitForState(t, svc, snap.SessionID, StateComplete)
	require.Len(t, done.MediaItems, 1)
	require.Nil(t, done.Error)
	require.Equal(t, 5, api.pollCount(snap.SessionID))
}

func TestPoll_TimesOutAtDeadline(t *testing.T) {
	api := newFakeAPI()
	api.pollInterval = "0.03s"
	svc := newTestService(t, api, Options{MaxPollDuration: 150 * time.Millisecond})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)

	expired := waitForState(t, svc, snap.SessionID, StateTimeout)
	require.False(t, expired.UpdatedAt.Before(snap.Deadline), "TIMEOUT recorded at %v before deadline %v", expired.UpdatedAt, snap.Deadline)
	require.Empty(t, expired.MediaItems)

	polls := api.polls(snap.SessionID)
	require.NotEmpty(t, polls)
	for _, at := range polls {
		require.False(t, at.After(expired.UpdatedAt), "poll at %v after TIMEOUT", at)
	}
	time.Sleep(100 * time.Millisecond)
	require.Len(t, api.polls(snap.SessionID), len(polls), "no polls after TIMEOUT")
}

func TestPoll_TerminalSessionIsNoop(t *testing.T) {
	api := newFakeAPI()
	api.getFn = func(string, int) (*picker.Session, error) {
		return nil, &picker.APIError{StatusCode: http.StatusNotFound, Message: "gone"}
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	waitForState(t, svc, snap.SessionID, StateError)
	require.Eventually(t, func() bool { return !svc.Store().polling(snap.SessionID) }, time.Second, 5*time.Millisecond)

	polls := api.pollCount(snap.SessionID)
	require.False(t, svc.Poll(snap.SessionID))
	require.False(t, svc.Poll("unknown"))
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, polls, api.pollCount(snap.SessionID))
}

func TestPoll_SinglePollerPerSession(t *testing.T) {
	api := newFakeAPI()
	api.pollInterval = "1s"
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, svc.Store().polling(snap.SessionID))
	require.False(t, svc.Poll(snap.SessionID), "second poller must not start")
}

func TestCreate_AlreadyPickedCompletesImmediately(t *testing.T) {
	api := newFakeAPI()
	api.createSet = true
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, StateComplete, snap.State)
	require.Len(t, snap.MediaItems, 1)
	require.Zero(t, api.pollCount(snap.SessionID))
}

func TestCreate_AlreadyPickedButNotListableFallsBackToPolling(t *testing.T) {
	api := newFakeAPI()
	api.createSet = true
	api.listFn = func(_ string, n int) ([]picker.MediaItem, error) {
		if n == 1 {
			return nil, &picker.APIError{StatusCode: http.StatusBadRequest, Status: "FAILED_PRECONDITION", Message: "wait"}
		}
		return []picker.MediaItem{{ID: "m"}}, nil
	}
	api.getFn = func(id string, _ int) (*picker.Session, error) {
		return &picker.Session{ID: id, MediaItemsSet: true}, nil
	}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, StatePending, snap.State)
	waitForState(t, svc, snap.SessionID, StateComplete)
}

func TestDelete_StopsPollerAndToleratesRemote404(t *testing.T) {
	api := newFakeAPI()
	api.deleteErr = &picker.APIError{StatusCode: http.StatusNotFound, Message: "gone"}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), snap.SessionID))

	_, err = svc.Status(snap.SessionID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{snap.SessionID}, api.deleted)

	time.Sleep(40 * time.Millisecond)
	polls := api.pollCount(snap.SessionID)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, polls, api.pollCount(snap.SessionID), "poller stopped after delete")

	require.ErrorIs(t, svc.Delete(context.Background(), snap.SessionID), ErrNotFound)
}

func TestDelete_ReportsRemoteFailure(t *testing.T) {
	api := newFakeAPI()
	api.deleteErr = &picker.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	svc := newTestService(t, api, Options{})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	require.Error(t, svc.Delete(context.Background(), snap.SessionID))
	require.Zero(t, svc.Store().Len(), "local entry removed regardless")
}

func TestShutdown_StopsPollersWithoutTransition(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(context.Background(), api, NewStore(), Options{MinPollInterval: time.Millisecond})

	snap, err := svc.Create(context.Background(), 0)
	require.NoError(t, err)
	svc.Shutdown()

	after, err := svc.Status(snap.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatePending, after.State)
	require.False(t, svc.Poll(snap.SessionID), "no pollers after shutdown")
}

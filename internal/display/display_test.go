package display

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type call struct {
	env   []string
	name  string
	args  []string
	start bool
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    []call
	runErr   error
	output   string
	startErr error
}

func (f *fakeRunner) Run(_ context.Context, env []string, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{env: env, name: name, args: args})
	return []byte(f.output), f.runErr
}

func (f *fakeRunner) Start(env []string, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{env: env, name: name, args: args, start: true})
	return f.startErr
}

func TestInvoker_SetPowerSelectsArgument(t *testing.T) {
	r := &fakeRunner{}
	inv := NewInvoker(r, " DISPLAY=:0 ")

	require.NoError(t, inv.SetPower(context.Background(), true))
	require.NoError(t, inv.SetPower(context.Background(), false))

	require.Len(t, r.calls, 2)
	require.Equal(t, "xset", r.calls[0].name)
	require.Equal(t, []string{"dpms", "force", "on"}, r.calls[0].args)
	require.Equal(t, []string{"dpms", "force", "off"}, r.calls[1].args)
	require.Equal(t, []string{"DISPLAY=:0"}, r.calls[0].env)
}

func TestInvoker_SetPowerReportsFailure(t *testing.T) {
	r := &fakeRunner{runErr: errors.New("exec: \"xset\": executable file not found"), output: "  "}
	inv := NewInvoker(r, "")

	err := inv.SetPower(context.Background(), true)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "xset dpms force on", execErr.Command)
	require.Zero(t, execErr.ExitCode)
	require.Contains(t, err.Error(), "executable file not found")
}

func TestInvoker_ShowPhotoStopsViewerFirst(t *testing.T) {
	r := &fakeRunner{}
	inv := NewInvoker(r, "DISPLAY=:0")

	require.NoError(t, inv.ShowPhoto(context.Background(), "/photos/a.jpg"))
	require.Len(t, r.calls, 2)
	require.Equal(t, "killall", r.calls[0].name)
	require.True(t, r.calls[1].start)
	require.Equal(t, "feh", r.calls[1].name)
	require.Equal(t, "/photos/a.jpg", r.calls[1].args[len(r.calls[1].args)-1])
}

func TestInvoker_ShowPhotoStartFailure(t *testing.T) {
	r := &fakeRunner{runErr: errors.New("no process found"), startErr: errors.New("missing feh")}
	inv := NewInvoker(r, "")

	err := inv.ShowPhoto(context.Background(), "/photos/a.jpg")
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "feh", execErr.Command)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	inv := NewInvoker(ExecRunner{}, "PIKIOSK_TEST=1")

	err := inv.run(context.Background(), "sh", "-c", `echo "$PIKIOSK_TEST"; exit 3`)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, 3, execErr.ExitCode)
	require.Equal(t, "1", execErr.Output)
	require.True(t, strings.Contains(err.Error(), "status 3"))

	require.NoError(t, inv.run(context.Background(), "sh", "-c", "exit 0"))
}

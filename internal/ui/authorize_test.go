package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeFlow struct {
	exchanged []string
	exchErr   error
}

func (f *fakeFlow) URL() string { return "https://accounts.example/auth?state=xyz" }

func (f *fakeFlow) ReceiveCode(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (f *fakeFlow) ParseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty code")
	}
	return input, nil
}

func (f *fakeFlow) Exchange(_ context.Context, code string) error {
	f.exchanged = append(f.exchanged, code)
	return f.exchErr
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m
}

func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	return cmd()
}

func TestModel_PastedCodeIsExchanged(t *testing.T) {
	flow := &fakeFlow{}
	m := New(Options{Flow: flow, TokenPath: "/tmp/token.json"})

	if view := m.View(); !strings.Contains(view, flow.URL()) {
		t.Fatalf("View does not show consent URL:\n%s", view)
	}

	m = typeText(m, "4/abc")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.phase != phaseExchanging {
		t.Fatalf("phase = %v, want exchanging", m.phase)
	}
	if m.ctx.Err() == nil {
		t.Fatalf("listener context still live after code was accepted")
	}

	msg := runCmd(t, cmd)
	if len(flow.exchanged) != 1 || flow.exchanged[0] != "4/abc" {
		t.Fatalf("exchanged = %v, want [4/abc]", flow.exchanged)
	}

	next, _ = m.Update(msg)
	m = next.(Model)
	if m.phase != phaseDone || m.Err() != nil {
		t.Fatalf("phase=%v err=%v, want done without error", m.phase, m.Err())
	}
	if view := m.View(); !strings.Contains(view, "authorized") {
		t.Fatalf("View after success:\n%s", view)
	}
}

func TestModel_InvalidPasteKeepsWaiting(t *testing.T) {
	flow := &fakeFlow{}
	m := New(Options{Flow: flow})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd != nil {
		t.Fatalf("expected no command for invalid input")
	}
	if m.phase != phaseWaiting || m.inputErr == nil {
		t.Fatalf("phase=%v inputErr=%v, want waiting with error", m.phase, m.inputErr)
	}
	if !strings.Contains(m.View(), "empty code") {
		t.Fatalf("View does not show input error")
	}
}

func TestModel_ListenerCodeTriggersExchange(t *testing.T) {
	flow := &fakeFlow{exchErr: errors.New("invalid_grant")}
	m := New(Options{Flow: flow, ListenAddr: "127.0.0.1:8090"})

	next, _ := m.Update(codeMsg{err: errors.New("address in use")})
	m = next.(Model)
	if m.listenerErr == nil || m.phase != phaseWaiting {
		t.Fatalf("listener error should be shown while waiting")
	}

	next, cmd := m.Update(codeMsg{code: "from-redirect"})
	m = next.(Model)
	next, _ = m.Update(runCmd(t, cmd))
	m = next.(Model)

	if len(flow.exchanged) != 1 || flow.exchanged[0] != "from-redirect" {
		t.Fatalf("exchanged = %v", flow.exchanged)
	}
	if m.Err() == nil || !strings.Contains(m.View(), "invalid_grant") {
		t.Fatalf("exchange failure not reported: err=%v", m.Err())
	}
}

func TestModel_EscAborts(t *testing.T) {
	m := New(Options{Flow: &fakeFlow{}})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if !errors.Is(m.Err(), ErrAborted) {
		t.Fatalf("Err = %v, want ErrAborted", m.Err())
	}
	if _, ok := runCmd(t, cmd).(tea.QuitMsg); !ok {
		t.Fatalf("expected quit command")
	}
}

func TestGetTheme_FallsBack(t *testing.T) {
	if got := GetTheme("nope").Name; got != "Nightfox" {
		t.Fatalf("GetTheme fallback = %q, want Nightfox", got)
	}
	if got := GetTheme("Kanagawa").Name; got != "Kanagawa" {
		t.Fatalf("GetTheme = %q, want Kanagawa", got)
	}
}

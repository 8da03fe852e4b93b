package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/pikiosk/internal/auth"
)

// ErrAborted is returned by Run when the operator quits before a token was saved.
var ErrAborted = errors.New("authorization aborted")

// Authorizer is the OAuth consent flow driven by the screen.
type Authorizer interface {
	URL() string
	ReceiveCode(ctx context.Context, addr string) (string, error)
	ParseCode(input string) (string, error)
	Exchange(ctx context.Context, code string) error
}

var _ Authorizer = (*auth.Flow)(nil)

// Options configures the authorization screen.
type Options struct {
	Context context.Context
	Flow    Authorizer
	// ListenAddr is the loopback address receiving the OAuth redirect.
	ListenAddr string
	TokenPath  string
	ThemeName  string
}

type phase int

const (
	phaseWaiting phase = iota
	phaseExchanging
	phaseDone
)

type codeMsg struct {
	code string
	err  error
}

type exchangedMsg struct {
	err error
}

// Model is the Bubble Tea model of the authorization screen.
type Model struct {
	ctx        context.Context
	stopListen context.CancelFunc
	flow       Authorizer
	listenAddr string
	tokenPath  string
	styles     Styles

	spinner spinner.Model
	input   textinput.Model

	phase       phase
	listenerErr error
	inputErr    error
	err         error
	aborted     bool
}

// New creates the model. The loopback listener starts with Init.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	styles := GetTheme(opts.ThemeName).Styles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.AccentText

	in := textinput.New()
	in.Placeholder = "paste code or redirect URL"
	in.CharLimit = 2048
	in.Width = 60
	in.Focus()

	listenCtx, cancel := context.WithCancel(ctx)
	return Model{
		ctx:        listenCtx,
		stopListen: cancel,
		flow:       opts.Flow,
		listenAddr: opts.ListenAddr,
		tokenPath:  opts.TokenPath,
		styles:     styles,
		spinner:    sp,
		input:      in,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textinput.Blink}
	if m.listenAddr != "" {
		cmds = append(cmds, receiveCodeCmd(m.ctx, m.flow, m.listenAddr))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case codeMsg:
		if m.phase != phaseWaiting {
			return m, nil
		}
		if msg.err != nil {
			if m.ctx.Err() == nil {
				m.listenerErr = msg.err
			}
			return m, nil
		}
		return m.exchange(msg.code)

	case exchangedMsg:
		// Codes are single use, so a failed exchange ends the screen.
		m.err = msg.err
		m.phase = phaseDone
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.aborted = true
		m.phase = phaseDone
		m.stopListen()
		return m, tea.Quit
	case tea.KeyEnter:
		if m.phase != phaseWaiting {
			return m, nil
		}
		code, err := m.flow.ParseCode(m.input.Value())
		if err != nil {
			m.inputErr = err
			return m, nil
		}
		m.inputErr = nil
		return m.exchange(code)
	}

	if m.phase != phaseWaiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) exchange(code string) (tea.Model, tea.Cmd) {
	m.phase = phaseExchanging
	m.input.Blur()
	m.stopListen()
	return m, exchangeCmd(context.WithoutCancel(m.ctx), m.flow, code)
}

// Err reports the outcome once the program has quit.
func (m Model) Err() error {
	if m.aborted {
		return ErrAborted
	}
	return m.err
}

// View implements tea.Model.
func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("pikiosk · authorize photo picker access"))
	b.WriteString("\n")

	switch m.phase {
	case phaseWaiting:
		b.WriteString(s.Text.Render("Open this URL and grant access:"))
		b.WriteString("\n\n")
		b.WriteString(s.Link.Render(m.flow.URL()))
		b.WriteString("\n\n")
		if m.listenAddr != "" && m.listenerErr == nil {
			b.WriteString(m.spinner.View())
			b.WriteString(s.MutedText.Render(" waiting for redirect on " + m.listenAddr))
			b.WriteString("\n\n")
		}
		if m.listenerErr != nil {
			b.WriteString(s.WarningText.Render("redirect listener stopped: " + m.listenerErr.Error()))
			b.WriteString("\n\n")
		}
		b.WriteString(s.Text.Render("Or paste the code here:"))
		b.WriteString("\n")
		b.WriteString(m.input.View())
		if m.inputErr != nil {
			b.WriteString("\n")
			b.WriteString(s.DangerText.Render(m.inputErr.Error()))
		}
		b.WriteString("\n\n")
		b.WriteString(s.MutedText.Render("enter submit · esc quit"))

	case phaseExchanging:
		b.WriteString(m.spinner.View())
		b.WriteString(s.Text.Render(" exchanging code for a token…"))

	case phaseDone:
		switch {
		case m.aborted:
			b.WriteString(s.WarningText.Render("aborted"))
		case m.err != nil:
			b.WriteString(s.DangerText.Render("authorization failed: " + m.err.Error()))
		default:
			b.WriteString(s.SuccessText.Render("authorized"))
			if m.tokenPath != "" {
				b.WriteString(s.MutedText.Render(" · token saved to " + m.tokenPath))
			}
		}
	}

	return s.Panel.Render(b.String()) + "\n"
}

func receiveCodeCmd(ctx context.Context, flow Authorizer, addr string) tea.Cmd {
	return func() tea.Msg {
		code, err := flow.ReceiveCode(ctx, addr)
		return codeMsg{code: code, err: err}
	}
}

func exchangeCmd(ctx context.Context, flow Authorizer, code string) tea.Cmd {
	return func() tea.Msg {
		return exchangedMsg{err: flow.Exchange(ctx, code)}
	}
}

// Run shows the authorization screen until a token is saved or the
// operator quits.
func Run(opts Options) error {
	m := New(opts)
	defer m.stopListen()
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.Err()
	}
	return nil
}

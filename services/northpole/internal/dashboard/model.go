package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xinkaiwang/northpole/services/northpole/api"
)

// StatusSource is what the dashboard reads and writes. *client.Client is the real one.
type StatusSource interface {
	GetStatus(ctx context.Context) (*api.StatusJson, error)
	GetSpeeds(ctx context.Context) (*api.SpeedsVm, error)
	SetSpeeds(ctx context.Context, speeds *api.SpeedsVm) error
}

const speedStep = 5

type statusMsg struct {
	status *api.StatusJson
	err    error
}

type speedsMsg struct {
	speeds *api.SpeedsVm
	err    error
}

// Model is read-only apart from the speed keys.
type Model struct {
	ctx     context.Context
	src     StatusSource
	refresh time.Duration

	spinner spinner.Model
	status  *api.StatusJson
	err     error
	speeds  *api.SpeedsVm
	width   int
}

func NewModel(ctx context.Context, src StatusSource, refresh time.Duration) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{ctx: ctx, src: src, refresh: refresh, spinner: sp}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchStatus(), m.fetchSpeeds())
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := m.src.GetStatus(m.ctx)
		return statusMsg{status: status, err: err}
	}
}

func (m *Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg {
		status, err := m.src.GetStatus(m.ctx)
		return statusMsg{status: status, err: err}
	})
}

func (m *Model) fetchSpeeds() tea.Cmd {
	return func() tea.Msg {
		speeds, err := m.src.GetSpeeds(m.ctx)
		return speedsMsg{speeds: speeds, err: err}
	}
}

func (m *Model) pushSpeeds(next api.SpeedsVm) tea.Cmd {
	return func() tea.Msg {
		if err := m.src.SetSpeeds(m.ctx, &next); err != nil {
			return speedsMsg{err: err}
		}
		return speedsMsg{speeds: &next}
	}
}

func clampSpeed(v float64) float64 {
	return max(0, min(100, v))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = msg.status
		}
		return m, m.scheduleRefresh()

	case speedsMsg:
		if msg.err == nil && msg.speeds != nil {
			m.speeds = msg.speeds
		}
		return m, nil

	case spinner.TickMsg:
		if m.status != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "w", "W", "v", "V":
			if m.speeds == nil {
				return m, nil
			}
			next := *m.speeds
			switch msg.String() {
			case "w":
				next.WorkSpeed = clampSpeed(next.WorkSpeed - speedStep)
			case "W":
				next.WorkSpeed = clampSpeed(next.WorkSpeed + speedStep)
			case "v":
				next.VacationSpeed = clampSpeed(next.VacationSpeed - speedStep)
			case "V":
				next.VacationSpeed = clampSpeed(next.VacationSpeed + speedStep)
			}
			m.speeds = &next
			return m, m.pushSpeeds(next)
		}
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(30).
			Height(4)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func (m *Model) View() string {
	if m.status == nil {
		if m.err != nil {
			return "no status available\n" + hintStyle.Render(m.err.Error()) + "\n"
		}
		return m.spinner.View() + " Connecting to the North Pole...\n"
	}
	var boxes []string
	for _, p := range Panels(m.status) {
		boxes = append(boxes, boxStyle.Render(labelStyle.Render(p.Title)+"\n"+p.Glyphs))
	}
	grid := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, boxes[0], boxes[1]),
		lipgloss.JoinHorizontal(lipgloss.Top, boxes[2], boxes[3]),
	)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("North Pole command center"))
	sb.WriteString("\n")
	sb.WriteString(grid)
	sb.WriteString("\n")
	if m.speeds != nil {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("work speed %.0f   vacation speed %.0f", m.speeds.WorkSpeed, m.speeds.VacationSpeed)))
		sb.WriteString("\n")
	}
	if m.err != nil {
		// keep the last good picture, flag it as stale
		sb.WriteString(hintStyle.Render("no status available: " + m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(hintStyle.Render("w/W work speed  v/V vacation speed  q quit"))
	sb.WriteString("\n")
	return sb.String()
}

// Run blocks until the user quits.
func Run(ctx context.Context, src StatusSource, refresh time.Duration) error {
	_, err := tea.NewProgram(NewModel(ctx, src, refresh), tea.WithContext(ctx)).Run()
	return err
}

// Package tui renders a live view of a running integration: the
// solution components, the step-size trace and the solver counters.
package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/odesim/internal/ivp"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(40)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 2)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

// StepEvent is one accepted step, published by the solver goroutine.
type StepEvent struct {
	T     float64
	H     float64
	Order int
	Y     []float64
	Stats ivp.Stats
}

// DoneMsg ends the live view; Err is nil on a clean finish.
type DoneMsg struct {
	Err error
}

type stepMsg StepEvent

// Model is the bubbletea model for the live monitor.
type Model struct {
	problem string
	events  <-chan StepEvent
	done    <-chan error

	last      StepEvent
	solution  [][]float64 // per-component history
	stepSizes []float64   // log10 of accepted h
	selected  int
	finished  bool
	err       error
}

func NewModel(problem string, dim int, events <-chan StepEvent, done <-chan error) Model {
	solution := make([][]float64, dim)
	for i := range solution {
		solution[i] = make([]float64, 0, historyCapacity)
	}
	return Model{
		problem:   problem,
		events:    events,
		done:      done,
		solution:  solution,
		stepSizes: make([]float64, 0, historyCapacity),
	}
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

// wait blocks on the next solver event. Completion is reported only
// after the event channel has drained.
func (m Model) wait() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return DoneMsg{Err: <-m.done}
		}
		return stepMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if len(m.solution) > 0 {
				m.selected = (m.selected + 1) % len(m.solution)
			}
		}
	case stepMsg:
		m.record(StepEvent(msg))
		return m, m.wait()
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
	}
	return m, nil
}

func (m *Model) record(ev StepEvent) {
	m.last = ev
	for i := range m.solution {
		if i < len(ev.Y) {
			m.solution[i] = append(m.solution[i], ev.Y[i])
			if len(m.solution[i]) > historyCapacity {
				m.solution[i] = m.solution[i][1:]
			}
		}
	}
	if ev.H > 0 {
		m.stepSizes = append(m.stepSizes, math.Log10(ev.H))
		if len(m.stepSizes) > historyCapacity {
			m.stepSizes = m.stepSizes[1:]
		}
	}
}

func (m Model) View() string {
	var graphs strings.Builder

	if len(m.solution) > m.selected && len(m.solution[m.selected]) > 1 {
		chart := asciigraph.Plot(m.solution[m.selected],
			asciigraph.Height(8), asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("y%d", m.selected)))
		graphs.WriteString(graphStyle.Render(chart) + "\n")
	}
	if len(m.stepSizes) > 1 {
		chart := asciigraph.Plot(m.stepSizes,
			asciigraph.Height(4), asciigraph.Width(60),
			asciigraph.Caption("step size (log10)"))
		graphs.WriteString(graphStyle.Render(chart) + "\n")
	}

	var s strings.Builder
	status := "RUNNING"
	if m.finished {
		if m.err != nil {
			status = errStyle.Render("FAILED: " + m.err.Error())
		} else {
			status = "DONE"
		}
	}
	s.WriteString(status + "\n\n")
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.6g", m.last.T)) + "\n")
	s.WriteString(labelStyle.Render("Step size") + valueStyle.Render(fmt.Sprintf("%.3e", m.last.H)) + "\n")
	s.WriteString(labelStyle.Render("Order") + valueStyle.Render(fmt.Sprintf("%d", m.last.Order)) + "\n")
	s.WriteString(labelStyle.Render("Steps") + valueStyle.Render(fmt.Sprintf("%d", m.last.Stats.Steps)) + "\n")
	s.WriteString(labelStyle.Render("RHS evals") + valueStyle.Render(fmt.Sprintf("%d", m.last.Stats.FcnEvals)) + "\n")
	s.WriteString(labelStyle.Render("Jac setups") + valueStyle.Render(fmt.Sprintf("%d", m.last.Stats.JacSetups)) + "\n")
	s.WriteString(labelStyle.Render("Conv fails") + valueStyle.Render(fmt.Sprintf("%d", m.last.Stats.ConvFails)) + "\n")
	s.WriteString(labelStyle.Render("Err fails") + valueStyle.Render(fmt.Sprintf("%d", m.last.Stats.ErrTestFails)) + "\n")
	s.WriteString(helpStyle.Render("Tab:Component Q:Quit"))

	header := headerStyle.Render(strings.ToUpper(m.problem))
	body := lipgloss.JoinHorizontal(lipgloss.Top, graphs.String(), statsStyle.Render(s.String()))
	return header + "\n" + body
}

// Run drives the live view until the solver finishes or the user
// quits.
func Run(problem string, dim int, events <-chan StepEvent, done <-chan error) error {
	p := tea.NewProgram(NewModel(problem, dim, events, done))
	_, err := p.Run()
	return err
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"datanerd/internal/types"
)

// maxActivityLines bounds the scrolling activity log in the progress view.
const maxActivityLines = 8

// EventMsg wraps one run event for the bubbletea update loop.
type EventMsg struct {
	Event types.RunEvent
}

// StreamClosedMsg signals that the run finished and its event channel closed.
type StreamClosedMsg struct{}

// Progress is the live view of one analysis run. It consumes the engine's
// event channel and renders the current step, disposition counts, and a
// short activity log. The run itself executes elsewhere; quitting the view
// cancels the run through the injected cancel func.
type Progress struct {
	styles  Styles
	spinner spinner.Model
	events  <-chan types.RunEvent
	cancel  func()

	dataset   string
	step      string
	iteration int
	question  string

	approved  int
	boring    int
	rejected  int
	abandoned int

	activity []string
	done     bool
	aborted  bool
	errText  string
}

// NewProgress builds the progress view over a run's event channel. cancel
// may be nil when the caller does not support mid-run cancellation.
func NewProgress(dataset string, events <-chan types.RunEvent, cancel func(), theme Theme) Progress {
	styles := NewStyles(theme)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Step
	return Progress{
		styles:  styles,
		spinner: sp,
		events:  events,
		cancel:  cancel,
		dataset: dataset,
		step:    "starting",
	}
}

// waitForEvent blocks on the event channel and feeds the next event into the
// update loop; a closed channel becomes StreamClosedMsg.
func waitForEvent(events <-chan types.RunEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Init starts the spinner and the event pump.
func (m Progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update advances the view for one message.
func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			// Keep draining events: the cancelled run still aborts,
			// archives, and closes the channel.
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)
		return m, waitForEvent(m.events)

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// apply folds one run event into the view state.
func (m *Progress) apply(ev types.RunEvent) {
	m.iteration = ev.Iteration

	switch ev.Kind {
	case types.EventStepStarted:
		m.step = ev.Step
	case types.EventQuestionStarted:
		m.question = ev.Message
		m.log(m.styles.Step.Render("?"), ev.Message)
	case types.EventExecutionRetry:
		m.log(m.styles.Muted.Render("~"), "retrying: "+firstLine(ev.Err))
	case types.EventCritiqueRetry:
		m.log(m.styles.Muted.Render("~"), "revising: "+firstLine(ev.Err))
	case types.EventQuestionAbandoned:
		m.abandoned++
		m.log(m.styles.Rejected.Render("x"), "abandoned: "+ev.Message)
	case types.EventInsightApproved:
		m.approved++
		m.log(m.styles.Approved.Render("+"), ev.Message)
	case types.EventInsightBoring:
		m.boring++
		m.log(m.styles.Boring.Render("·"), "already known: "+ev.Message)
	case types.EventInsightRejected:
		m.rejected++
		m.log(m.styles.Rejected.Render("-"), "rejected: "+ev.Message)
	case types.EventRunAborted:
		m.aborted = true
		m.errText = ev.Err
	}
}

func (m *Progress) log(marker, text string) {
	m.activity = append(m.activity, marker+" "+text)
	if len(m.activity) > maxActivityLines {
		m.activity = m.activity[len(m.activity)-maxActivityLines:]
	}
}

// firstLine trims a multi-line error down to its head for the activity log.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

// Counts reports the disposition tallies the view has seen, for callers that
// want a summary after the program exits.
func (m Progress) Counts() (approved, boring, rejected, abandoned int) {
	return m.approved, m.boring, m.rejected, m.abandoned
}

// Aborted reports whether the run ended with an abort event.
func (m Progress) Aborted() bool { return m.aborted }

// View renders the progress frame.
func (m Progress) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("dataNERD") + " " +
		m.styles.Muted.Render("analyzing "+m.dataset) + "\n\n")

	if m.done {
		if m.aborted {
			b.WriteString(m.styles.Error.Render("run aborted") + "\n")
			if m.errText != "" {
				b.WriteString(m.styles.Muted.Render(firstLine(m.errText)) + "\n")
			}
		} else {
			b.WriteString(m.styles.Approved.Render("run complete") + "\n")
		}
	} else {
		b.WriteString(fmt.Sprintf("%s %s  %s\n",
			m.spinner.View(),
			m.styles.Step.Render(m.step),
			m.styles.Muted.Render(fmt.Sprintf("iteration %d", m.iteration))))
		if m.question != "" {
			b.WriteString(m.styles.Muted.Render("  "+m.question) + "\n")
		}
	}

	b.WriteString("\n" + m.styles.Counts.Render(fmt.Sprintf(
		"approved %d · known %d · rejected %d · abandoned %d",
		m.approved, m.boring, m.rejected, m.abandoned)) + "\n")

	if len(m.activity) > 0 {
		b.WriteString("\n")
		for _, line := range m.activity {
			b.WriteString(line + "\n")
		}
	}
	if !m.done {
		b.WriteString("\n" + m.styles.Muted.Render("press q to cancel") + "\n")
	}
	return b.String()
}

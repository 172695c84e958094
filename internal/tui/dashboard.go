// Package tui renders the live dashboard for a scan run.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reinetwork/actor-zillow-api-scraper/internal/tui/styles"
)

// Snapshot is one render of the run's counters.
type Snapshot struct {
	Pages     int64
	Details   int64
	Found     int64
	Collected int
	Cap       int
	Highwater int
	Errors    int64
	Blocked   int64
	Queued    int
	Pending   int
	Sessions  int
	Elapsed   time.Duration
}

// target returns what the progress bar fills toward: the item cap when
// set, otherwise the largest total the upstream has reported.
func (s Snapshot) target() int {
	if s.Cap > 0 {
		return s.Cap
	}
	return s.Highwater
}

// Messages
type tickMsg time.Time

type runDoneMsg struct {
	err error
}

// Dashboard is the bubbletea model for a running scan.
type Dashboard struct {
	title    string
	dbPath   string
	snap     func() Snapshot
	cancel   context.CancelFunc
	progress progress.Model

	last        Snapshot
	done        bool
	stopping    bool
	confirmQuit bool
	err         error
	width       int
	height      int
}

// NewDashboard builds the model. snap is polled on a ticker; cancel
// stops the underlying run.
func NewDashboard(title, dbPath string, snap func() Snapshot, cancel context.CancelFunc) Dashboard {
	return Dashboard{
		title:  title,
		dbPath: dbPath,
		snap:   snap,
		cancel: cancel,
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(50),
		),
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if d.done || d.stopping {
				// Second request: leave without waiting for the drain.
				return d, tea.Quit
			}
			d.cancel()
			d.stopping = true
			d.confirmQuit = false
			return d, nil
		case "esc":
			if d.done {
				return d, tea.Quit
			}
			if d.confirmQuit {
				d.cancel()
				d.stopping = true
				d.confirmQuit = false
				return d, nil
			}
			d.confirmQuit = true
			return d, nil
		case "enter", "q":
			if d.done {
				return d, tea.Quit
			}
			if d.confirmQuit {
				d.confirmQuit = false
			}
			return d, nil
		default:
			if d.confirmQuit {
				d.confirmQuit = false
			}
		}

	case tickMsg:
		if d.done {
			return d, nil
		}
		d.last = d.snap()
		return d, tickCmd()

	case runDoneMsg:
		d.done = true
		d.err = msg.err
		d.last = d.snap()
		if d.stopping {
			return d, tea.Quit
		}
		return d, nil
	}

	return d, nil
}

func (d Dashboard) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Scanning: " + d.title))
	b.WriteString("\n\n")

	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(34).
		Render(d.renderStats())
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	var pct float64
	if t := d.last.target(); t > 0 {
		pct = float64(d.last.Collected) / float64(t)
		if pct > 1 {
			pct = 1
		}
	}
	b.WriteString(d.progress.ViewAs(pct))
	b.WriteString("\n\n")

	switch {
	case d.done:
		if d.err != nil && !errors.Is(d.err, context.Canceled) {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", d.err)))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d listings collected", d.last.Collected)))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
				Render("Database: " + d.dbPath))
		}
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter exit"))
	case d.stopping:
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Bold(true).
			Render("Stopping: in-flight pages are finishing, the run stays resumable"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("ctrl+c force quit"))
	case d.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the scan"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("esc stop • ctrl+c quit"))
	}

	return lipgloss.Place(
		d.width, d.height,
		lipgloss.Center, lipgloss.Top,
		b.String(),
	)
}

func (d Dashboard) renderStats() string {
	var sb strings.Builder
	s := d.last

	row := func(label, value string) {
		sb.WriteString(styles.Label.Render(label))
		sb.WriteString(styles.Value.Render(value))
		sb.WriteString("\n")
	}

	collected := fmt.Sprintf("%d", s.Collected)
	if s.Cap > 0 {
		collected = fmt.Sprintf("%d/%d", s.Collected, s.Cap)
	} else if s.Highwater > 0 {
		collected = fmt.Sprintf("%d of ~%d", s.Collected, s.Highwater)
	}

	row("Pages:", fmt.Sprintf("%d", s.Pages))
	row("Details:", fmt.Sprintf("%d", s.Details))
	row("Found:", fmt.Sprintf("%d", s.Found))
	row("Collected:", collected)

	errStyle := styles.Value
	if s.Errors > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(styles.Label.Render("Errors:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", s.Errors)))
	sb.WriteString("\n")

	if s.Blocked > 0 {
		blkStyle := lipgloss.NewStyle().Foreground(styles.Warning).Bold(true)
		sb.WriteString(styles.Label.Render("Blocked:"))
		sb.WriteString(blkStyle.Render(fmt.Sprintf("%d", s.Blocked)))
		sb.WriteString("\n")
	}

	row("Queue:", fmt.Sprintf("%d (%d pending)", s.Queued, s.Pending))
	row("Sessions:", fmt.Sprintf("%d", s.Sessions))
	row("Elapsed:", s.Elapsed.String())

	return sb.String()
}

// Run drives the dashboard while start executes in the background.
// The screen stays up after the run finishes so the summary is
// readable; the run's error is returned once the user leaves. ctx
// bounds both: when it dies the program exits and the run is
// cancelled.
func Run(ctx context.Context, title, dbPath string, snap func() Snapshot, start func(context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewDashboard(title, dbPath, snap, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := start(runCtx)
		done <- err
		p.Send(runDoneMsg{err: err})
	}()

	_, uiErr := p.Run()
	cancel()
	runErr := <-done

	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		return uiErr
	}
	return runErr
}

package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	nameStyle     = lipgloss.NewStyle().Width(28)
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0051"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#008bfb"))
	mutedStyle    = lipgloss.NewStyle().Faint(true)
)

// Text draws the artifact as a horizontal bar chart for terminals.
func (a Artifact) Text() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(a.Title))
	b.WriteByte('\n')
	b.WriteString(mutedStyle.Render(fmt.Sprintf("base value %.4f -> output %.4f", a.BaseValue, a.Output)))
	b.WriteByte('\n')

	peak := 0.0
	for _, e := range a.Entries {
		peak = math.Max(peak, math.Abs(e.Value))
	}
	for _, e := range a.Entries {
		name := e.Name
		if e.Label != "" {
			name = fmt.Sprintf("%s = %s", e.Name, e.Label)
		}
		n := 0
		if peak > 0 {
			n = int(math.Round(math.Abs(e.Value) / peak * barWidth))
		}
		style := positiveStyle
		if e.Value < 0 {
			style = negativeStyle
		}
		bar := style.Render(strings.Repeat("█", n))
		fmt.Fprintf(&b, "%s %+.4f %s %s\n", nameStyle.Render(name), e.Value, bar, mutedStyle.Render(fmt.Sprintf("(%.4f)", e.Cumulative)))
	}
	return b.String()
}

// Display shows artifacts to the user of a session.
type Display interface {
	Show(ctx context.Context, sessionID string, a Artifact) error
}

// WriterDisplay prints artifacts as text. Writes are serialized.
type WriterDisplay struct {
	mu sync.Mutex
	W  io.Writer
}

func (d *WriterDisplay) Show(_ context.Context, _ string, a Artifact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := io.WriteString(d.W, a.Text())
	return err
}

// Recorder keeps every shown artifact per session.
type Recorder struct {
	mu    sync.Mutex
	shown map[string][]Artifact
}

func NewRecorder() *Recorder {
	return &Recorder{shown: make(map[string][]Artifact)}
}

func (r *Recorder) Show(_ context.Context, sessionID string, a Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown[sessionID] = append(r.shown[sessionID], a)
	return nil
}

// Shown returns a copy of the artifacts shown to sessionID.
func (r *Recorder) Shown(sessionID string) []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Artifact(nil), r.shown[sessionID]...)
}

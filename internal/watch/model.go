// Package watch is a terminal view of the detection broadcast.
package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/framecast/internal/detection"
)

const (
	refreshInterval = 250 * time.Millisecond
	// idleAfter turns the header badge idle when no record arrived for this long.
	idleAfter  = 3 * time.Second
	recentSize = 8
	topClasses = 10
)

type tickMsg time.Time

// RecordMsg carries one decoded broadcast.
type RecordMsg struct {
	Record     detection.Record
	ReceivedAt time.Time
}

// MalformedMsg reports a broadcast that did not decode.
type MalformedMsg struct{ Err error }

// ClosedMsg is sent when the feed channel closes.
type ClosedMsg struct{}

// Stats is the aggregate the model keeps over received records.
type Stats struct {
	Records    int
	Malformed  int
	Gaps       int
	Detections int
	LastSeq    uint64
	LastAt     time.Time
	FirstAt    time.Time
	Classes    map[string]int
}

// Rate is records per second since the first record.
func (s Stats) Rate() float64 {
	if s.Records < 2 {
		return 0
	}
	span := s.LastAt.Sub(s.FirstAt).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(s.Records-1) / span
}

// Model is the bubbletea model for the watcher.
type Model struct {
	subject string
	feed    <-chan []byte
	now     func() time.Time

	stats  Stats
	recent []detection.Record
	width  int
	closed bool

	quitting bool
}

// New creates a model reading raw broadcasts from feed.
func New(subject string, feed <-chan []byte) *Model {
	return &Model{
		subject: subject,
		feed:    feed,
		now:     time.Now,
		stats:   Stats{Classes: make(map[string]int)},
	}
}

// Stats returns the aggregate so far.
func (m *Model) Stats() Stats {
	return m.stats
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickEvery(refreshInterval), Listen(m.feed))
}

// Listen waits for the next broadcast on feed and decodes it.
func Listen(feed <-chan []byte) tea.Cmd {
	return func() tea.Msg {
		data, ok := <-feed
		if !ok {
			return ClosedMsg{}
		}
		rec, err := detection.Decode(data)
		if err != nil {
			return MalformedMsg{Err: err}
		}
		return RecordMsg{Record: rec, ReceivedAt: time.Now()}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.reset()
		}
		return m, nil

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tickEvery(refreshInterval)

	case RecordMsg:
		m.observe(msg.Record, msg.ReceivedAt)
		return m, Listen(m.feed)

	case MalformedMsg:
		m.stats.Malformed++
		return m, Listen(m.feed)

	case ClosedMsg:
		m.closed = true
		return m, nil
	}
	return m, nil
}

func (m *Model) observe(rec detection.Record, at time.Time) {
	s := &m.stats
	if s.Records > 0 && rec.FrameSeq > s.LastSeq+1 {
		s.Gaps += int(rec.FrameSeq - s.LastSeq - 1)
	}
	if s.Records == 0 {
		s.FirstAt = at
	}
	s.Records++
	s.LastSeq = rec.FrameSeq
	s.LastAt = at
	for _, slot := range rec.Det {
		for _, obj := range slot {
			s.Detections++
			s.Classes[obj.Class]++
		}
	}

	m.recent = append(m.recent, rec)
	if len(m.recent) > recentSize {
		m.recent = m.recent[len(m.recent)-recentSize:]
	}
}

func (m *Model) reset() {
	m.stats = Stats{Classes: make(map[string]int)}
	m.recent = nil
}

func (m *Model) live() bool {
	return !m.closed && !m.stats.LastAt.IsZero() && m.now().Sub(m.stats.LastAt) < idleAfter
}

func (m *Model) View() string {
	if m.quitting {
		return "Shutting down watcher...\n"
	}

	width := m.width
	if width == 0 {
		width = 100
	}

	header := HeaderStyle.Width(width - 2).Render(
		fmt.Sprintf("Framecast detections on %q  %s", m.subject, StatusBadge(m.live())))

	half := width/2 - 2
	summary := PanelStyle.Width(half).Render(m.renderSummary())
	classes := PanelStyle.Width(half).Render(m.renderClasses())
	recent := PanelStyle.Width(width - 2).Render(m.renderRecent())

	help := HelpStyle.Render("q quit  r reset")
	if m.closed {
		help = ErrorStyle.Render("feed closed") + "  " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, summary, classes),
		recent,
		help,
	)
}

func (m *Model) renderSummary() string {
	s := m.stats
	rows := []struct {
		label string
		value string
	}{
		{"Last frame", fmt.Sprintf("%d", s.LastSeq)},
		{"Records", fmt.Sprintf("%d", s.Records)},
		{"Rate", fmt.Sprintf("%.1f/s", s.Rate())},
		{"Detections", fmt.Sprintf("%d", s.Detections)},
		{"Sequence gaps", fmt.Sprintf("%d", s.Gaps)},
		{"Malformed", fmt.Sprintf("%d", s.Malformed)},
	}

	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render("Feed"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(LabelStyle.Render(fmt.Sprintf("%-14s", r.label)))
		b.WriteString(ValueStyle.Render(r.value))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ClassCount is a class name with the number of detections seen.
type ClassCount struct {
	Name  string
	Count int
}

// TopClasses returns up to n class names by descending count, ties by name.
func (s Stats) TopClasses(n int) []ClassCount {
	out := make([]ClassCount, 0, len(s.Classes))
	for name, c := range s.Classes {
		out = append(out, ClassCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (m *Model) renderClasses() string {
	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render("Classes"))
	top := m.stats.TopClasses(topClasses)
	if len(top) == 0 {
		b.WriteString("\n" + LabelStyle.Render("none yet"))
	}
	for _, c := range top {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render(fmt.Sprintf("%-14s", c.Name)))
		b.WriteString(ValueStyle.Render(fmt.Sprintf("%d", c.Count)))
	}
	return b.String()
}

func (m *Model) renderRecent() string {
	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render("Recent"))
	if len(m.recent) == 0 {
		b.WriteString("\n" + LabelStyle.Render("waiting for broadcasts"))
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		rec := m.recent[i]
		b.WriteString("\n")
		b.WriteString(ValueStyle.Render(fmt.Sprintf("#%-7d", rec.FrameSeq)))
		b.WriteString(LabelStyle.Render(fmt.Sprintf(" %dx%d ", rec.Width, rec.Height)))
		var objs []string
		for _, slot := range rec.Det {
			for _, obj := range slot {
				objs = append(objs, obj.Class+" "+ConfidenceStyle(obj.Confidence).Render(fmt.Sprintf("%.2f", obj.Confidence)))
			}
		}
		if len(objs) == 0 {
			b.WriteString(LabelStyle.Render("-"))
			continue
		}
		b.WriteString(strings.Join(objs, ", "))
	}
	return b.String()
}

package watch

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/framecast/internal/detection"
)

func record(seq uint64, classes ...string) detection.Record {
	slot := make([]detection.Object, 0, len(classes))
	for _, c := range classes {
		slot = append(slot, detection.Object{Class: c, X1: 10, Y1: 10, Confidence: 0.8})
	}
	return detection.Record{FrameSeq: seq, Width: 640, Height: 480, Det: [][]detection.Object{slot}}
}

func TestModelObservesRecords(t *testing.T) {
	m := New("detections", make(chan []byte))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Update(RecordMsg{Record: record(1, "person", "car"), ReceivedAt: base})
	m.Update(RecordMsg{Record: record(2, "person"), ReceivedAt: base.Add(time.Second)})
	m.Update(RecordMsg{Record: record(5), ReceivedAt: base.Add(2 * time.Second)})
	m.Update(MalformedMsg{Err: assert.AnError})

	s := m.Stats()
	assert.Equal(t, 3, s.Records)
	assert.Equal(t, uint64(5), s.LastSeq)
	assert.Equal(t, 2, s.Gaps, "frames 3 and 4 missing")
	assert.Equal(t, 3, s.Detections)
	assert.Equal(t, 1, s.Malformed)
	assert.Equal(t, 1.0, s.Rate())
	assert.Equal(t, []ClassCount{{"person", 2}, {"car", 1}}, s.TopClasses(10))
	assert.Equal(t, []ClassCount{{"person", 2}}, s.TopClasses(1))
}

func TestModelRecentIsBounded(t *testing.T) {
	m := New("detections", make(chan []byte))
	for i := 1; i <= recentSize+3; i++ {
		m.Update(RecordMsg{Record: record(uint64(i)), ReceivedAt: time.Now()})
	}
	require.Len(t, m.recent, recentSize)
	assert.Equal(t, uint64(4), m.recent[0].FrameSeq)
}

func TestModelKeys(t *testing.T) {
	m := New("detections", make(chan []byte))
	m.Update(RecordMsg{Record: record(1, "dog"), ReceivedAt: time.Now()})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Zero(t, m.Stats().Records)
	assert.Empty(t, m.Stats().Classes)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "Shutting down")
}

func TestListenDecodesFeed(t *testing.T) {
	feed := make(chan []byte, 3)
	feed <- []byte(`{"fn":7,"width":320,"height":240,"det":[[{"cl":"person","x0":1,"x1":2,"y0":3,"y1":4,"pr":0.5}]]}`)
	feed <- []byte(`not json`)
	close(feed)

	msg := Listen(feed)()
	rec, ok := msg.(RecordMsg)
	require.True(t, ok)
	assert.Equal(t, uint64(7), rec.Record.FrameSeq)
	assert.Equal(t, "person", rec.Record.Det[0][0].Class)

	_, ok = Listen(feed)().(MalformedMsg)
	assert.True(t, ok)

	_, ok = Listen(feed)().(ClosedMsg)
	assert.True(t, ok)
}

func TestViewRendersState(t *testing.T) {
	m := New("detections", make(chan []byte))
	now := time.Now()
	m.now = func() time.Time { return now }

	assert.Contains(t, m.View(), "waiting for broadcasts")
	assert.Contains(t, m.View(), "IDLE")

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(RecordMsg{Record: record(42, "bicycle"), ReceivedAt: now})
	view := m.View()
	assert.Contains(t, view, "bicycle")
	assert.Contains(t, view, "#42")
	assert.Contains(t, view, "LIVE")

	m.Update(ClosedMsg{})
	assert.Contains(t, m.View(), "feed closed")
}

package framestore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/framecast/internal/frame"
)

func rec(seq uint64) *frame.Record {
	return frame.NewRecord(seq, &frame.Image{Width: 1, Height: 1, Format: frame.FormatGray, Pix: []byte{byte(seq)}})
}

func TestNewCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-3).Capacity())
	assert.Equal(t, 7, New(7).Capacity())
}

func TestCapacityFor(t *testing.T) {
	tests := []struct {
		name      string
		fps       float64
		retention time.Duration
		want      int
	}{
		{"default window", 25, 10 * time.Second, 250},
		{"fractional rounds up", 29.97, time.Second, 30},
		{"tiny window keeps one", 1, time.Millisecond, 1},
		{"zero fps", 0, time.Second, DefaultCapacity},
		{"zero retention", 25, 0, DefaultCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CapacityFor(tt.fps, tt.retention))
		})
	}
}

func TestPutGet(t *testing.T) {
	s := New(3)

	r := rec(1)
	assert.Nil(t, s.Put(r))

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Same(t, r, got)

	_, ok = s.Get(2)
	assert.False(t, ok)
}

func TestEvictsOldestByInsertionOrder(t *testing.T) {
	s := New(3)

	// Out-of-order sequence numbers still evict by insertion.
	for _, seq := range []uint64{10, 2, 7} {
		require.Nil(t, s.Put(rec(seq)))
	}

	evicted := s.Put(rec(1))
	require.NotNil(t, evicted)
	assert.Equal(t, uint64(10), evicted.Seq)

	_, ok := s.Get(10)
	assert.False(t, ok)
	for _, seq := range []uint64{2, 7, 1} {
		_, ok := s.Get(seq)
		assert.True(t, ok, "seq %d", seq)
	}
	assert.Equal(t, 3, s.Len())
}

func TestCapacityOneKeepsLatest(t *testing.T) {
	s := New(1)
	s.Put(rec(1))
	evicted := s.Put(rec(2))
	require.NotNil(t, evicted)
	assert.Equal(t, uint64(1), evicted.Seq)

	_, ok := s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestReputKeepsInsertionSlot(t *testing.T) {
	s := New(2)
	s.Put(rec(1))
	s.Put(rec(2))

	replacement := rec(1)
	assert.Nil(t, s.Put(replacement))
	assert.Equal(t, 2, s.Len())

	got, _ := s.Get(1)
	assert.Same(t, replacement, got)

	// 1 is still the oldest insertion.
	evicted := s.Put(rec(3))
	require.NotNil(t, evicted)
	assert.Equal(t, uint64(1), evicted.Seq)
}

func TestStats(t *testing.T) {
	s := New(2)
	assert.Equal(t, Stats{Capacity: 2}, s.Stats())

	for seq := uint64(1); seq <= 3; seq++ {
		s.Put(rec(seq))
	}
	s.Get(3)
	s.Get(1)

	st := s.Stats()
	assert.Equal(t, 2, st.Size)
	assert.Equal(t, uint64(2), st.OldestSeq)
	assert.Equal(t, uint64(3), st.NewestSeq)
	assert.Equal(t, uint64(3), st.Puts)
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, uint64(1), st.Evictions)
}

func TestPutNil(t *testing.T) {
	s := New(2)
	assert.Nil(t, s.Put(nil))
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentReadersSeeWholeRecords(t *testing.T) {
	s := New(50)
	const writes = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= writes; seq++ {
			s.Put(rec(seq))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				seq := uint64(i%writes + 1)
				if got, ok := s.Get(seq); ok {
					assert.Equal(t, seq, got.Seq)
					assert.Equal(t, byte(seq), got.Image.Pix[0])
				}
				assert.LessOrEqual(t, s.Len(), 50)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	st := s.Stats()
	assert.Equal(t, uint64(writes-49), st.OldestSeq)
	assert.Equal(t, uint64(writes), st.NewestSeq)
}

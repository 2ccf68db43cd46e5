package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepthinks/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	exists, err := s.SessionExists(ctx, 7, 1)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateSession(ctx, 7, 1))
	exists, err = s.SessionExists(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.CreateSession(ctx, 7, 2))
	latest, err := s.LatestSessionNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	require.NoError(t, s.TouchSession(ctx, 7, 1))
}

func TestLoadEmptySession(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.Load(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, st.Ledger)
	assert.False(t, st.Smoothing.Initialized)
	assert.Nil(t, st.Memory)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st := &memory.SessionState{
		UserID:     3,
		SessionNum: 1,
		Ledger: memory.Ledger{
			{Prompt: "hi", Response: "hello", TokenCount: 4, Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)},
			{Prompt: "and?", Response: "more", TokenCount: 3, Timestamp: time.Date(2026, 2, 1, 10, 1, 0, 0, time.UTC)},
		},
		Smoothing: memory.SmoothingState{SmoothedAvgTokens: 3.5, Initialized: true},
		Memory: &memory.LongTermMemory{
			Interactions:     []memory.MemoryEntry{{Timestamp: "2026-02-01T09:00:00Z", Summary: "greeting exchange"}},
			ImportantDetails: []string{"user speaks English"},
		},
	}
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, st.Ledger, got.Ledger)
	assert.Equal(t, st.Smoothing, got.Smoothing)
	require.NotNil(t, got.Memory)
	assert.Equal(t, st.Memory, got.Memory)
	assert.Equal(t, 7, got.Ledger.TotalTokens())

	// Upsert replaces the snapshot.
	st.Ledger = st.Ledger[1:]
	st.Memory.ImportantDetails = append(st.Memory.ImportantDetails, "new fact")
	require.NoError(t, s.Save(ctx, st))
	got, err = s.Load(ctx, 3, 1)
	require.NoError(t, err)
	assert.Len(t, got.Ledger, 1)
	assert.Len(t, got.Memory.ImportantDetails, 2)
}

func TestAuditLogAndRecentHistory(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		it := memory.Interaction{
			Prompt:     "q",
			Response:   "a",
			TokenCount: i + 1,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.LogInteraction(ctx, 9, 1, it))
	}

	got, err := s.RecentHistory(ctx, 9, 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Chronological order, most recent three.
	assert.Equal(t, 3, got[0].TokenCount)
	assert.Equal(t, 5, got[2].TokenCount)
	assert.True(t, got[0].Timestamp.Before(got[2].Timestamp))
}

func TestLockerSerializesSameKeyOnly(t *testing.T) {
	l := NewLocker()

	release := l.Acquire("1/1")
	otherDone := make(chan struct{})
	go func() {
		r := l.Acquire("2/1") // different session, must not block
		r()
		close(otherDone)
	}()
	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("different session blocked by unrelated lock")
	}

	var order []int
	var mu sync.Mutex
	sameDone := make(chan struct{})
	go func() {
		r := l.Acquire("1/1")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		r()
		close(sameDone)
	}()
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()
	<-sameDone

	assert.Equal(t, []int{1, 2}, order)
}

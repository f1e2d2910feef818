package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	return New("1", Setup{Alphabet: "abc", Timeout: 10 * time.Millisecond}, nil, nil, BrowserChrome)
}

func TestRecordLeak_AppendsWhenNoOverride(t *testing.T) {
	s := newTestSession()
	s.RecordLeak('a', nil)
	s.RecordLeak('b', nil)
	assert.Equal(t, []rune{'a', 'b'}, s.Reconstruction())
	assert.Equal(t, 2, s.Step())
}

func TestRecordLeak_StepZeroAlwaysOverwrites(t *testing.T) {
	s := newTestSession()
	s.RecordLeak('a', nil)
	zero := 0
	s.RecordLeak('Z', &zero)
	assert.Equal(t, []rune{'Z'}, s.Reconstruction())
}

func TestRecordLeak_IdempotentOverwriteSuppressed(t *testing.T) {
	s := newTestSession()
	s.RecordLeak('a', nil)
	s.RecordLeak('b', nil)
	s.RecordLeak('c', nil)

	one := 1
	// decoded == reconstruction[step-1] ('a') and != reconstruction[step] ('b')
	s.RecordLeak('a', &one)
	assert.Equal(t, []rune{'a', 'b', 'c'}, s.Reconstruction(), "double-fire should be suppressed")
}

func TestRecordLeak_GenuineOverwriteApplies(t *testing.T) {
	s := newTestSession()
	s.RecordLeak('a', nil)
	s.RecordLeak('b', nil)
	s.RecordLeak('c', nil)

	one := 1
	s.RecordLeak('Z', &one)
	assert.Equal(t, []rune{'a', 'Z', 'c'}, s.Reconstruction())
}

func TestDecodeChar_SentinelForOutOfRange(t *testing.T) {
	assert.Equal(t, rune(UnknownGlyph), DecodeChar("abc", 3))
	assert.Equal(t, rune(UnknownGlyph), DecodeChar("abc", -1))
	assert.Equal(t, rune('b'), DecodeChar("abc", 1))
}

func TestAwaitAdvance_ReturnsImmediatelyWhenAlreadyAhead(t *testing.T) {
	s := newTestSession()
	s.RecordLeak('a', nil)
	done := make(chan struct{})
	advanced := s.AwaitAdvance(0, time.Second, done)
	assert.True(t, advanced)
}

func TestAwaitAdvance_WakesOnRecordLeak(t *testing.T) {
	s := newTestSession()
	done := make(chan struct{})
	result := make(chan bool, 1)
	go func() {
		result <- s.AwaitAdvance(0, time.Second, done)
	}()

	time.Sleep(10 * time.Millisecond)
	s.RecordLeak('a', nil)

	select {
	case advanced := <-result:
		assert.True(t, advanced)
	case <-time.After(time.Second):
		t.Fatal("AwaitAdvance did not wake within bound")
	}
}

func TestAwaitAdvance_TimesOutWithoutAdvance(t *testing.T) {
	s := newTestSession()
	done := make(chan struct{})
	start := time.Now()
	advanced := s.AwaitAdvance(0, 20*time.Millisecond, done)
	elapsed := time.Since(start)
	assert.False(t, advanced)
	assert.True(t, elapsed >= 20*time.Millisecond)
}

func TestAwaitAdvance_NoLostWakeupUnderRace(t *testing.T) {
	s := newTestSession()
	done := make(chan struct{})
	const waiters = 20
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			results <- s.AwaitAdvance(0, 2*time.Second, done)
		}()
	}
	time.Sleep(5 * time.Millisecond)
	s.RecordLeak('a', nil)

	for i := 0; i < waiters; i++ {
		select {
		case advanced := <-results:
			assert.True(t, advanced)
		case <-time.After(2 * time.Second):
			t.Fatal("a waiter missed the wakeup")
		}
	}
}

func TestStore_CreateOrResume_ReusesKnownID(t *testing.T) {
	st := NewStore()
	calls := 0
	factory := func(id string) (*Session, error) {
		calls++
		return New(id, Setup{}, nil, nil, BrowserChrome), nil
	}

	s1, err := st.CreateOrResume("42", factory)
	require.NoError(t, err)
	s2, err := st.CreateOrResume("42", factory)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, calls)
}

func TestStore_CreateOrResume_AllocatesMonotonicID(t *testing.T) {
	st := NewStore()
	factory := func(id string) (*Session, error) {
		return New(id, Setup{}, nil, nil, BrowserChrome), nil
	}

	s1, err := st.CreateOrResume("", factory)
	require.NoError(t, err)
	s2, err := st.CreateOrResume("", factory)
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestStore_ResolveStatic_DistinctIPsYieldDistinctSessions(t *testing.T) {
	st := NewStore()
	st.RegisterStaticSetup("sid1", Setup{Alphabet: "abc"})

	factory := func(id string, setup Setup) (*Session, error) {
		return New(id, setup, nil, nil, BrowserChrome), nil
	}

	key1 := StaticKey("1.1.1.1", "ua", "ref", "sid1")
	key2 := StaticKey("2.2.2.2", "ua", "ref", "sid1")

	s1, ok1, err := st.ResolveStatic("sid1", key1, factory)
	require.NoError(t, err)
	require.True(t, ok1)

	s2, ok2, err := st.ResolveStatic("sid1", key2, factory)
	require.NoError(t, err)
	require.True(t, ok2)

	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestStore_ResolveStatic_UnknownSIDReturnsFalse(t *testing.T) {
	st := NewStore()
	factory := func(id string, setup Setup) (*Session, error) {
		return New(id, setup, nil, nil, BrowserChrome), nil
	}
	_, ok, err := st.ResolveStatic("nope", "key", factory)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Sweep_RemovesIdleSessions(t *testing.T) {
	st := NewStore()
	s, err := st.CreateOrResume("", func(id string) (*Session, error) {
		return New(id, Setup{Timeout: time.Millisecond}, nil, nil, BrowserChrome), nil
	})
	require.NoError(t, err)

	removed := st.Sweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, removed)
	_, ok := st.Lookup(s.ID)
	assert.False(t, ok)
}

func TestStore_Sweep_KeepsActiveSessions(t *testing.T) {
	st := NewStore()
	_, err := st.CreateOrResume("", func(id string) (*Session, error) {
		return New(id, Setup{Timeout: time.Hour}, nil, nil, BrowserChrome), nil
	})
	require.NoError(t, err)

	removed := st.Sweep(time.Now())
	assert.Equal(t, 0, removed)
	assert.Equal(t, 1, st.Len())
}

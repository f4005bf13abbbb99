package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/offersync/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		sig      Signals
		loggedIn bool
		score    int
	}{
		{"nothing", Signals{}, false, 0},
		{"one strong", Signals{Strong: []string{SignalLogoutControl}}, true, 3},
		{"one weak", Signals{Weak: []string{SignalGreeting}}, false, 1},
		{"two weak", Signals{Weak: []string{SignalGreeting, "keyword:my account"}}, true, 2},
		{"cookie alone", Signals{Cookie: true}, false, 1},
		{"cookie and one weak", Signals{Cookie: true, Weak: []string{SignalGreeting}}, true, 2},
		{"everything", Signals{Strong: []string{SignalAccountLink, SignalLogoutControl}, Weak: []string{SignalGreeting}, Cookie: true}, true, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Score(tt.sig)
			assert.Equal(t, tt.loggedIn, v.LoggedIn)
			assert.Equal(t, tt.score, v.Score)
			assert.Equal(t, tt.sig.Cookie, v.CookieHit)
		})
	}
}

func TestSignalsFromHTML(t *testing.T) {
	d, err := New(models.DefaultVocabulary().Session)
	require.NoError(t, err)

	t.Run("logged in page", func(t *testing.T) {
		html := `<html><body>
<header><span>Welcome back, Maria</span><a href="/account/upcoming-cruises">My Cruises</a><button>Sign Out</button></header>
<script>var session = "my account";</script>
</body></html>`
		sig, err := d.SignalsFromHTML(html, []string{"rcl_access_token=abc", "theme=dark"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{SignalAccountLink, SignalLogoutControl}, sig.Strong)
		assert.Contains(t, sig.Weak, SignalGreeting)
		assert.Contains(t, sig.Weak, "keyword:my cruises")
		assert.NotContains(t, sig.Weak, "keyword:my account", "script text is ignored")
		assert.True(t, sig.Cookie)
		assert.True(t, Score(sig).LoggedIn)
	})

	t.Run("logged out page", func(t *testing.T) {
		html := `<html><body><a href="/signin">Sign In</a><p>Plan your next vacation.</p></body></html>`
		sig, err := d.SignalsFromHTML(html, []string{"theme=dark"})
		require.NoError(t, err)
		assert.Empty(t, sig.Strong)
		assert.Empty(t, sig.Weak)
		assert.False(t, sig.Cookie)
		assert.False(t, Score(sig).LoggedIn)
	})

	t.Run("logout link by href", func(t *testing.T) {
		sig, err := d.SignalsFromHTML(`<html><body><a href="/auth/logout"><img alt=""></a></body></html>`, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{SignalLogoutControl}, sig.Strong)
	})
}

// scripted returns each Signals in turn, repeating the last one.
type scripted struct {
	mu    sync.Mutex
	seq   []Signals
	calls int
}

func (s *scripted) source(context.Context) (Signals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.seq) {
		i = len(s.seq) - 1
	}
	s.calls++
	return s.seq[i], nil
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestWatcher_EmitsOnlyOnChange(t *testing.T) {
	out := Signals{}
	in := Signals{Strong: []string{SignalLogoutControl}}
	src := &scripted{seq: []Signals{out, out, in, in, in, out}}

	var mu sync.Mutex
	var verdicts []bool
	w := NewWatcher(src.source, func(v models.SessionVerdict) {
		mu.Lock()
		verdicts = append(verdicts, v.LoggedIn)
		mu.Unlock()
	}, 200*time.Millisecond, 10*time.Millisecond)

	last := w.Run(context.Background())

	require.GreaterOrEqual(t, src.count(), 6)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true, false}, verdicts)
	assert.False(t, last.LoggedIn)
}

func TestWatcher_RecheckAndLifetime(t *testing.T) {
	src := &scripted{seq: []Signals{{}}}
	w := NewWatcher(src.source, nil, 80*time.Millisecond, time.Hour)

	done := make(chan struct{})
	start := time.Now()
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, time.Millisecond)
	w.Recheck()
	require.Eventually(t, func() bool { return src.count() == 2 }, time.Second, time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher outlived its lifetime")
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWatcher_SourceErrorsAreSkipped(t *testing.T) {
	calls := 0
	var emitted int
	w := NewWatcher(func(context.Context) (Signals, error) {
		calls++
		return Signals{}, errors.New("tab gone")
	}, func(models.SessionVerdict) { emitted++ }, 30*time.Millisecond, 5*time.Millisecond)

	w.Run(context.Background())
	assert.Positive(t, calls)
	assert.Zero(t, emitted)
}

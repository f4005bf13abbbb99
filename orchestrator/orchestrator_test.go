package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/offersync/models"
	"github.com/use-agent/offersync/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeNav struct {
	mu        sync.Mutex
	active    int
	activeErr error
	url       string
	failKeys  map[string]error
	targets   []Target
	tabs      []int
}

func (f *fakeNav) ActiveTab(context.Context) (int, error) {
	return f.active, f.activeErr
}

func (f *fakeNav) TabURL(context.Context, int) (string, error) {
	return f.url, nil
}

func (f *fakeNav) Navigate(_ context.Context, tabID int, t Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, t)
	f.tabs = append(f.tabs, tabID)
	return f.failKeys[t.Step.DataKey]
}

func (f *fakeNav) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.targets))
	for i, t := range f.targets {
		out[i] = t.URL
	}
	return out
}

type recorder struct {
	ch chan models.ProgressEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan models.ProgressEvent, 1024)}
}

func (r *recorder) Publish(ev models.ProgressEvent) {
	select {
	case r.ch <- ev:
	default:
	}
}

// next waits for the first event matching pred, failing the test on timeout.
func (r *recorder) next(t *testing.T, timeout time.Duration, pred func(models.ProgressEvent) bool) models.ProgressEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-r.ch:
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no matching progress event within %s", timeout)
			return models.ProgressEvent{}
		}
	}
}

// quiet asserts that nothing matching pred is published within d.
func (r *recorder) quiet(t *testing.T, d time.Duration, pred func(models.ProgressEvent) bool) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-r.ch:
			if pred(ev) {
				t.Fatalf("unexpected progress event: %+v", ev)
			}
		case <-deadline:
			return
		}
	}
}

func status(s models.ProgressStatus) func(models.ProgressEvent) bool {
	return func(ev models.ProgressEvent) bool { return ev.Status == s }
}

func statusAt(s models.ProgressStatus, step int) func(models.ProgressEvent) bool {
	return func(ev models.ProgressEvent) bool { return ev.Status == s && ev.Step == step }
}

func terminal(ev models.ProgressEvent) bool { return ev.Terminal() }

type harness struct {
	o     *Orchestrator
	nav   *fakeNav
	rec   *recorder
	store *store.StateStore
}

func fastOptions() Options {
	return Options{
		StepTimeout:     5 * time.Second,
		TimeoutGrace:    10 * time.Millisecond,
		CompletionDelay: 10 * time.Millisecond,
		ErrorDelay:      10 * time.Millisecond,
	}
}

func newHarness(t *testing.T, opts Options, nav *fakeNav) *harness {
	t.Helper()
	if nav == nil {
		nav = &fakeNav{url: "https://www.royalcaribbean.com/"}
	}
	h := &harness{
		nav:   nav,
		rec:   newRecorder(),
		store: store.NewStateStore(store.NewMemory()),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.o = New(ctx, nav, h.store, h.rec, opts)
	done := make(chan struct{})
	go func() {
		h.o.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func tab(id int) *int { return &id }

func (h *harness) snapshot(t *testing.T) models.SyncState {
	t.Helper()
	st, err := h.o.Snapshot(context.Background())
	require.NoError(t, err)
	return st
}

func TestStart_RoyalTabNavigatesToOffers(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)

	res := h.o.Start(context.Background(), models.StartRequest{TabID: tab(7), CruiseLine: "royal"})
	require.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)

	started := h.rec.next(t, time.Second, status(models.ProgressStarted))
	assert.Equal(t, 0, started.Step)
	assert.Equal(t, 4, started.TotalSteps)

	loading := h.rec.next(t, time.Second, status(models.ProgressLoading))
	assert.Equal(t, 1, loading.Step)
	assert.Equal(t, "offers", loading.DataKey)

	st := h.snapshot(t)
	assert.True(t, st.IsRunning)
	assert.Equal(t, 1, st.Step)
	assert.Equal(t, 7, st.TabID)
	assert.Equal(t, models.BrandRoyal, st.CruiseLine)
	assert.Equal(t, "https://www.royalcaribbean.com", st.BaseURL)

	require.Eventually(t, func() bool { return len(h.nav.urls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://www.royalcaribbean.com/club-royale/offers", h.nav.urls()[0])
}

func TestStepTimeout_WarnsThenAdvances(t *testing.T) {
	opts := fastOptions()
	opts.StepTimeout = 40 * time.Millisecond
	h := newHarness(t, opts, nil)

	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7), CruiseLine: "royal"}).Success)

	warning := h.rec.next(t, time.Second, status(models.ProgressWarning))
	assert.Equal(t, 1, warning.Step)
	assert.Equal(t, "offers", warning.DataKey)

	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 2))
	require.Eventually(t, func() bool { return len(h.nav.urls()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://www.royalcaribbean.com/account/upcoming-cruises", h.nav.urls()[1])
}

func TestStart_WhileRunningFails(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	ctx := context.Background()

	first := h.o.Start(ctx, models.StartRequest{TabID: tab(7)})
	require.True(t, first.Success)
	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{"offers":[]}`)})
	h.rec.next(t, time.Second, statusAt(models.ProgressCompleted, 1))

	second := h.o.Start(ctx, models.StartRequest{TabID: tab(9), CruiseLine: "celebrity"})
	assert.False(t, second.Success)
	require.NotNil(t, second.Error)
	assert.Equal(t, models.ErrCodeAlreadyRunning, second.Error.Code)

	st := h.snapshot(t)
	assert.Equal(t, first.RunID, st.RunID)
	assert.Equal(t, 7, st.TabID)
	assert.Equal(t, models.BrandRoyal, st.CruiseLine)
	assert.JSONEq(t, `{"offers":[]}`, string(st.CapturedData["offers"]))
}

func TestCapture_StaleStepIgnored(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7)}).Success)

	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{"offers":[1]}`)})
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 2))
	h.o.Capture(models.DataCaptured{DataKey: "upcomingCruises", Data: json.RawMessage(`[1,2]`)})
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 3))

	// Late deliveries for steps 1 and 2 arrive while step 3 is active.
	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{"offers":[9,9,9]}`)})
	h.o.Capture(models.DataCaptured{DataKey: "upcomingCruises", Data: json.RawMessage(`[]`)})
	h.rec.quiet(t, 50*time.Millisecond, status(models.ProgressCompleted))

	st := h.snapshot(t)
	assert.Equal(t, 3, st.Step)
	assert.Nil(t, st.CapturedData["courtesyHolds"])
	assert.JSONEq(t, `{"offers":[1]}`, string(st.CapturedData["offers"]))
	assert.JSONEq(t, `[1,2]`, string(st.CapturedData["upcomingCruises"]))
}

func TestCapture_DuplicateIsIdempotent(t *testing.T) {
	opts := fastOptions()
	opts.CompletionDelay = 30 * time.Millisecond
	h := newHarness(t, opts, nil)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7)}).Success)

	msg := models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{"offers":[{"offerCode":"A"}]}`)}
	h.o.Capture(msg)
	h.o.Capture(msg)

	h.rec.next(t, time.Second, statusAt(models.ProgressCompleted, 1))
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 2))
	h.rec.quiet(t, 100*time.Millisecond, func(ev models.ProgressEvent) bool {
		return ev.Status == models.ProgressLoading || (ev.Status == models.ProgressCompleted && ev.Step == 1)
	})

	st := h.snapshot(t)
	assert.Equal(t, 2, st.Step)
	assert.JSONEq(t, `{"offers":[{"offerCode":"A"}]}`, string(st.CapturedData["offers"]))
}

func TestCapture_DuringTimeoutGraceAdvancesOnce(t *testing.T) {
	opts := fastOptions()
	opts.StepTimeout = 20 * time.Millisecond
	opts.TimeoutGrace = 80 * time.Millisecond
	h := newHarness(t, opts, nil)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7)}).Success)

	h.rec.next(t, time.Second, statusAt(models.ProgressWarning, 1))
	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{"offers":[1]}`)})

	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 2))
	loaded := time.Now()

	st := h.snapshot(t)
	assert.Equal(t, 2, st.Step)
	assert.JSONEq(t, `{"offers":[1]}`, string(st.CapturedData["offers"]))

	// Step 3 only follows step 2's own timeout and grace.
	third := h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 3))
	assert.Equal(t, "courtesyHolds", third.DataKey)
	assert.GreaterOrEqual(t, time.Since(loaded), 90*time.Millisecond)
}

func TestCapture_OtherRunIgnored(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7)}).Success)
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 1))

	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{}`), RunID: "someone-else"})
	h.rec.quiet(t, 50*time.Millisecond, status(models.ProgressCompleted))
	assert.Nil(t, h.snapshot(t).CapturedData["offers"])
}

func TestAllStepsCaptured_CompletesWithSummary(t *testing.T) {
	h := newHarness(t, fastOptions(), nil)
	start := h.o.Start(context.Background(), models.StartRequest{TabID: tab(7), CruiseLine: "royal"})
	require.True(t, start.Success)

	payloads := []models.DataCaptured{
		{DataKey: "offers", Data: json.RawMessage(`{"offers":[{"offerCode":"A"},{"offerCode":"B"},{"offerCode":"C"}]}`), RunID: start.RunID},
		{DataKey: "upcomingCruises", Data: json.RawMessage(`{"payload":{"sailingInfo":[{},{}]}}`)},
		{DataKey: "courtesyHolds", Data: json.RawMessage(`{"payload":{"holds":[{}]}}`)},
		{DataKey: "loyalty", Data: json.RawMessage(`{"clubRoyale":{"tier":"Prime"}}`)},
	}
	for i, p := range payloads {
		h.rec.next(t, time.Second, statusAt(models.ProgressLoading, i+1))
		h.o.Capture(p)
	}

	final := h.rec.next(t, time.Second, terminal)
	assert.Equal(t, models.ProgressCompleted, final.Status)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 3, final.Summary.Offers)
	assert.Equal(t, 2, final.Summary.UpcomingCruises)
	assert.Equal(t, 1, final.Summary.CourtesyHolds)
	assert.True(t, final.Summary.LoyaltyCaptured)
	assert.Equal(t, 4, final.Summary.CapturedSteps)
	assert.Empty(t, final.Summary.SkippedSteps)

	var aggregate struct {
		Offers struct {
			Offers []json.RawMessage `json:"offers"`
		} `json:"offers"`
	}
	require.NoError(t, json.Unmarshal(final.Data, &aggregate))
	assert.Len(t, aggregate.Offers.Offers, final.Summary.Offers)

	st := h.snapshot(t)
	assert.False(t, st.IsRunning)
	assert.Equal(t, models.StatusCompleted, st.Status)

	saved, ok, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, saved.Status)
}

func TestLiveness_EveryStepTimesOut(t *testing.T) {
	opts := fastOptions()
	opts.StepTimeout = 20 * time.Millisecond
	opts.TimeoutGrace = 5 * time.Millisecond
	h := newHarness(t, opts, nil)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7)}).Success)

	// Bound is steps x (timeout + grace) plus scheduling slack.
	final := h.rec.next(t, 4*25*time.Millisecond+time.Second, terminal)
	assert.Equal(t, models.ProgressCompleted, final.Status)
	require.NotNil(t, final.Summary)
	assert.Equal(t, 0, final.Summary.CapturedSteps)
	assert.Equal(t, []string{"offers", "upcomingCruises", "courtesyHolds", "loyalty"}, final.Summary.SkippedSteps)
	assert.False(t, h.snapshot(t).IsRunning)
}

func TestStop_IsFinal(t *testing.T) {
	opts := fastOptions()
	opts.StepTimeout = 30 * time.Millisecond
	h := newHarness(t, opts, nil)
	ctx := context.Background()
	require.True(t, h.o.Start(ctx, models.StartRequest{TabID: tab(7)}).Success)
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 1))

	assert.True(t, h.o.Stop(ctx).Success)
	stopped := h.rec.next(t, time.Second, terminal)
	assert.Equal(t, models.ProgressStopped, stopped.Status)

	// The step 1 timeout would have fired by now.
	h.rec.quiet(t, 100*time.Millisecond, func(models.ProgressEvent) bool { return true })
	h.o.Capture(models.DataCaptured{DataKey: "offers", Data: json.RawMessage(`{}`)})

	st := h.snapshot(t)
	assert.False(t, st.IsRunning)
	assert.Equal(t, models.StatusStopped, st.Status)
	assert.Equal(t, 1, st.Step)
	assert.Nil(t, st.CapturedData["offers"])

	assert.True(t, h.o.Stop(ctx).Success, "stopping an idle orchestrator is harmless")
}

func TestNavigationError_ReportsAndAdvances(t *testing.T) {
	nav := &fakeNav{failKeys: map[string]error{"offers": errors.New("tab closed")}}
	h := newHarness(t, fastOptions(), nav)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{TabID: tab(7), CruiseLine: "royal"}).Success)

	errEv := h.rec.next(t, time.Second, status(models.ProgressError))
	assert.Equal(t, 1, errEv.Step)
	assert.Contains(t, errEv.Message, "tab closed")
	h.rec.next(t, time.Second, statusAt(models.ProgressLoading, 2))
}

func TestStart_ResolvesActiveTabAndBrand(t *testing.T) {
	nav := &fakeNav{active: 3, url: "https://www.celebritycruises.com/account"}
	h := newHarness(t, fastOptions(), nav)
	require.True(t, h.o.Start(context.Background(), models.StartRequest{}).Success)

	st := h.snapshot(t)
	assert.Equal(t, 3, st.TabID)
	assert.Equal(t, models.BrandCelebrity, st.CruiseLine)
	require.Eventually(t, func() bool { return len(nav.urls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://www.celebritycruises.com/blue-chip-club/offers", nav.urls()[0])
}

func TestStart_Failures(t *testing.T) {
	tests := []struct {
		name string
		nav  *fakeNav
		req  models.StartRequest
		code string
	}{
		{"unknown cruise line", &fakeNav{}, models.StartRequest{TabID: tab(1), CruiseLine: "carnival"}, models.ErrCodeInvalidInput},
		{"no active tab", &fakeNav{activeErr: errors.New("no window")}, models.StartRequest{}, models.ErrCodeTabNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fastOptions(), tt.nav)
			res := h.o.Start(context.Background(), tt.req)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.False(t, h.snapshot(t).IsRunning)
		})
	}
}

func TestNew_RehydratesWithoutResuming(t *testing.T) {
	ctx := context.Background()
	st := store.NewStateStore(store.NewMemory())
	require.NoError(t, st.Save(ctx, models.SyncState{
		RunID:        "old",
		IsRunning:    true,
		Status:       models.StatusRunning,
		Step:         2,
		TotalSteps:   4,
		CapturedData: map[string]json.RawMessage{
			"offers":          json.RawMessage(`{"offers":[]}`),
			"upcomingCruises": nil,
		},
	}))

	runCtx, cancel := context.WithCancel(ctx)
	o := New(ctx, &fakeNav{}, st, newRecorder(), fastOptions())
	done := make(chan struct{})
	go func() {
		o.Run(runCtx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	snap, err := o.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
	assert.Equal(t, models.StatusStopped, snap.Status)
	assert.Equal(t, "old", snap.RunID)
	assert.Nil(t, snap.CapturedData["upcomingCruises"], "uncaptured step stays nil after a restart")
	assert.Equal(t, 1, Summarize(o.Steps(), snap.CapturedData).CapturedSteps)

	res := o.Start(ctx, models.StartRequest{TabID: tab(1)})
	assert.True(t, res.Success, "a rehydrated run does not block a new one")
	assert.NotEqual(t, "old", res.RunID)
}

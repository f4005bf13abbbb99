package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/offersync/config"
	"github.com/use-agent/offersync/models"
)

// Navigator drives the controlled browser tab.
type Navigator interface {
	// ActiveTab returns the tab the user is looking at.
	ActiveTab(ctx context.Context) (int, error)
	// TabURL returns the current URL of a tab.
	TabURL(ctx context.Context, tabID int) (string, error)
	// Navigate points a tab at a step's page.
	Navigate(ctx context.Context, tabID int, target Target) error
}

// Target is where a step sends the tab.
type Target struct {
	RunID string
	URL   string
	Brand models.Brand
	Step  models.StepDefinition
}

// StateStore mirrors SyncState to durable storage.
type StateStore interface {
	Save(ctx context.Context, st models.SyncState) error
	// Load returns the last saved state. ok is false when nothing was saved.
	Load(ctx context.Context) (st models.SyncState, ok bool, err error)
}

// Publisher receives every progress event. Publish must not block.
type Publisher interface {
	Publish(ev models.ProgressEvent)
}

// Options tune an Orchestrator.
type Options struct {
	StepTimeout     time.Duration
	TimeoutGrace    time.Duration
	CompletionDelay time.Duration
	ErrorDelay      time.Duration

	// Steps defaults to DefaultSteps().
	Steps []models.StepDefinition

	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig builds Options from the sync section of the config.
func OptionsFromConfig(cfg config.SyncConfig) Options {
	return Options{
		StepTimeout:     cfg.StepTimeout,
		TimeoutGrace:    cfg.TimeoutGrace,
		CompletionDelay: cfg.CompletionDelay,
		ErrorDelay:      cfg.ErrorDelay,
	}
}

func (o *Options) withDefaults() {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.TimeoutGrace <= 0 {
		o.TimeoutGrace = time.Second
	}
	if o.CompletionDelay <= 0 {
		o.CompletionDelay = 1500 * time.Millisecond
	}
	if o.ErrorDelay <= 0 {
		o.ErrorDelay = time.Second
	}
	if len(o.Steps) == 0 {
		o.Steps = DefaultSteps()
	}
	if o.NewRunID == nil {
		o.NewRunID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Orchestrator is the sync state machine. A single goroutine (Run) owns the
// SyncState; every other method talks to it through the inbox.
type Orchestrator struct {
	nav   Navigator
	store StateStore
	pub   Publisher
	opts  Options

	inbox chan any
	done  chan struct{}

	// Owned by the Run goroutine.
	state     models.SyncState
	armed     int // step whose advance is already scheduled, 0 when none
	navErrors int
	timers    []*time.Timer
	runCtx    context.Context
	runCancel context.CancelFunc
}

type (
	startMsg struct {
		req   resolvedStart
		reply chan models.StartResult
	}
	stopMsg struct {
		reply chan models.StopResult
	}
	captureMsg struct {
		c models.DataCaptured
	}
	snapshotMsg struct {
		reply chan models.SyncState
	}
	navResult struct {
		runID string
		step  int
		err   error
	}
	timerMsg struct {
		kind  timerKind
		runID string
		step  int
	}
)

type timerKind int

const (
	timerStepTimeout timerKind = iota
	timerAdvance
)

type resolvedStart struct {
	tabID int
	brand models.Brand
}

// New creates an Orchestrator and rehydrates the last persisted state.
// A rehydrated run is never resumed.
func New(ctx context.Context, nav Navigator, store StateStore, pub Publisher, opts Options) *Orchestrator {
	opts.withDefaults()
	o := &Orchestrator{
		nav:   nav,
		store: store,
		pub:   pub,
		opts:  opts,
		inbox: make(chan any, 64),
		done:  make(chan struct{}),
		state: models.SyncState{
			Status:     models.StatusIdle,
			TotalSteps: len(opts.Steps),
		},
	}
	if store != nil {
		st, ok, err := store.Load(ctx)
		switch {
		case err != nil:
			slog.Warn("could not load saved sync state", "error", err)
		case ok:
			st.IsRunning = false
			if st.Status == models.StatusRunning {
				st.Status = models.StatusStopped
			}
			o.state = st
			slog.Info("rehydrated sync state", "runId", st.RunID, "status", st.Status, "step", st.Step)
		}
	}
	return o
}

// Steps returns the step sequence this orchestrator runs.
func (o *Orchestrator) Steps() []models.StepDefinition {
	return append([]models.StepDefinition(nil), o.opts.Steps...)
}

// Run processes messages until ctx is done. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	defer func() {
		o.cancelTimers()
		close(o.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-o.inbox:
			o.handle(ctx, m)
		}
	}
}

// Start begins a new run. It fails without touching the current run when one
// is already in progress.
func (o *Orchestrator) Start(ctx context.Context, req models.StartRequest) models.StartResult {
	if st, err := o.Snapshot(ctx); err == nil && st.IsRunning {
		return failStart(models.NewSyncError(models.ErrCodeAlreadyRunning, "a sync is already running", nil))
	}

	resolved, err := o.resolve(ctx, req)
	if err != nil {
		return failStart(err)
	}

	reply := make(chan models.StartResult, 1)
	if err := o.send(ctx, startMsg{req: resolved, reply: reply}); err != nil {
		return failStart(models.NewSyncError(models.ErrCodeInternal, "orchestrator unavailable", err))
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return failStart(models.NewSyncError(models.ErrCodeInternal, "start interrupted", ctx.Err()))
	case <-o.done:
		return failStart(models.NewSyncError(models.ErrCodeInternal, "orchestrator unavailable", errStopped))
	}
}

// Stop ends the current run. Pending timers for it become no-ops.
func (o *Orchestrator) Stop(ctx context.Context) models.StopResult {
	reply := make(chan models.StopResult, 1)
	if err := o.send(ctx, stopMsg{reply: reply}); err != nil {
		return models.StopResult{Success: false}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return models.StopResult{Success: false}
	case <-o.done:
		return models.StopResult{Success: false}
	}
}

// Capture hands a captured payload to the orchestrator. It never blocks;
// acceptance is decided on the actor goroutine.
func (o *Orchestrator) Capture(c models.DataCaptured) {
	o.post(captureMsg{c: c})
}

// Snapshot returns a deep copy of the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (models.SyncState, error) {
	reply := make(chan models.SyncState, 1)
	if err := o.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return models.SyncState{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return models.SyncState{}, ctx.Err()
	case <-o.done:
		return models.SyncState{}, errStopped
	}
}

var errStopped = errors.New("orchestrator: not running")

// send blocks until the actor accepts m.
func (o *Orchestrator) send(ctx context.Context, m any) error {
	select {
	case o.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return errStopped
	}
}

// post delivers m without blocking the caller on a full inbox.
func (o *Orchestrator) post(m any) {
	select {
	case o.inbox <- m:
	case <-o.done:
	default:
		go func() {
			select {
			case o.inbox <- m:
			case <-o.done:
			}
		}()
	}
}

func (o *Orchestrator) resolve(ctx context.Context, req models.StartRequest) (resolvedStart, error) {
	var r resolvedStart

	if req.TabID != nil {
		r.tabID = *req.TabID
	} else {
		if o.nav == nil {
			return r, models.NewSyncError(models.ErrCodeTabNotFound, "no tab id given and no browser attached", nil)
		}
		id, err := o.nav.ActiveTab(ctx)
		if err != nil {
			return r, models.NewSyncError(models.ErrCodeTabNotFound, "could not resolve the active tab", err)
		}
		r.tabID = id
	}

	if req.CruiseLine != "" {
		b, ok := models.ParseBrand(req.CruiseLine)
		if !ok {
			return r, models.NewSyncError(models.ErrCodeInvalidInput,
				fmt.Sprintf("unknown cruise line %q", req.CruiseLine), nil)
		}
		r.brand = b
		return r, nil
	}

	r.brand = models.BrandRoyal
	if o.nav != nil {
		raw, err := o.nav.TabURL(ctx, r.tabID)
		if err != nil {
			slog.Warn("could not read tab url, assuming royal", "tabId", r.tabID, "error", err)
			return r, nil
		}
		if u, err := url.Parse(raw); err == nil {
			r.brand = models.DetectBrand(u.Hostname())
		}
	}
	return r, nil
}

func failStart(err error) models.StartResult {
	var se *models.SyncError
	if !errors.As(err, &se) {
		se = models.NewSyncError(models.ErrCodeInternal, err.Error(), err)
	}
	return models.StartResult{Success: false, Error: se.ToDetail()}
}

// --- actor side ---

func (o *Orchestrator) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case startMsg:
		m.reply <- o.onStart(ctx, m.req)
	case stopMsg:
		m.reply <- o.onStop(ctx)
	case captureMsg:
		o.onCapture(ctx, m.c)
	case snapshotMsg:
		m.reply <- o.state.Clone()
	case navResult:
		o.onNavResult(ctx, m)
	case timerMsg:
		o.onTimer(ctx, m)
	}
}

func (o *Orchestrator) onStart(ctx context.Context, req resolvedStart) models.StartResult {
	if o.state.IsRunning {
		return failStart(models.NewSyncError(models.ErrCodeAlreadyRunning, "a sync is already running", nil))
	}
	o.cancelTimers()

	now := o.opts.Now()
	captured := make(map[string]json.RawMessage, len(o.opts.Steps))
	for _, s := range o.opts.Steps {
		captured[s.DataKey] = nil
	}
	o.state = models.SyncState{
		RunID:        o.opts.NewRunID(),
		IsRunning:    true,
		Status:       models.StatusRunning,
		TabID:        req.tabID,
		Step:         0,
		TotalSteps:   len(o.opts.Steps),
		CapturedData: captured,
		CruiseLine:   req.brand,
		BaseURL:      req.brand.BaseURL(),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	o.armed = 0
	o.navErrors = 0
	o.runCtx, o.runCancel = context.WithCancel(ctx)

	slog.Info("sync started", "runId", o.state.RunID, "tabId", req.tabID, "brand", req.brand)
	o.persist(ctx)
	o.emit(models.ProgressEvent{
		Message: fmt.Sprintf("Starting sync for %s", brandLabel(req.brand)),
		Status:  models.ProgressStarted,
	})
	o.advance(ctx)
	return models.StartResult{Success: true, RunID: o.state.RunID}
}

func (o *Orchestrator) onStop(ctx context.Context) models.StopResult {
	if !o.state.IsRunning {
		return models.StopResult{Success: true}
	}
	o.cancelTimers()
	o.state.IsRunning = false
	o.state.Status = models.StatusStopped
	o.armed = 0
	slog.Info("sync stopped", "runId", o.state.RunID, "step", o.state.Step)
	o.emit(models.ProgressEvent{
		Message: "Sync stopped",
		Status:  models.ProgressStopped,
	})
	o.persist(ctx)
	return models.StopResult{Success: true}
}

func (o *Orchestrator) onCapture(ctx context.Context, c models.DataCaptured) {
	log := slog.With("dataKey", c.DataKey, "runId", o.state.RunID, "step", o.state.Step)

	step, ok := o.activeStep()
	switch {
	case !o.state.IsRunning:
		log.Debug("capture ignored, no run active")
		return
	case c.RunID != "" && c.RunID != o.state.RunID:
		log.Debug("capture ignored, stale run", "captureRunId", c.RunID)
		return
	case !ok || c.DataKey != step.DataKey:
		log.Debug("capture ignored, not the active step")
		return
	case o.state.CapturedData[c.DataKey] != nil:
		log.Debug("capture ignored, already captured")
		return
	case len(c.Data) == 0:
		log.Warn("capture ignored, empty payload")
		return
	}

	o.state.CapturedData[c.DataKey] = append(json.RawMessage(nil), c.Data...)
	log.Info("step captured", "bytes", len(c.Data))
	o.emit(models.ProgressEvent{
		Message: fmt.Sprintf("Captured %s", step.Name),
		Status:  models.ProgressCompleted,
		DataKey: c.DataKey,
	})
	o.persist(ctx)
	o.scheduleAdvance(o.opts.CompletionDelay)
}

func (o *Orchestrator) onNavResult(ctx context.Context, r navResult) {
	if !o.current(r.runID, r.step) || r.err == nil {
		return
	}
	step, _ := o.activeStep()
	o.navErrors++
	slog.Warn("navigation failed", "runId", r.runID, "step", r.step, "error", r.err)
	o.emit(models.ProgressEvent{
		Message: fmt.Sprintf("Could not open %s: %v", step.Name, r.err),
		Status:  models.ProgressError,
		DataKey: step.DataKey,
	})
	o.persist(ctx)
	o.scheduleAdvance(o.opts.ErrorDelay)
}

func (o *Orchestrator) onTimer(ctx context.Context, t timerMsg) {
	if !o.current(t.runID, t.step) {
		return
	}
	switch t.kind {
	case timerStepTimeout:
		step, _ := o.activeStep()
		if o.state.CapturedData[step.DataKey] != nil || o.armed == o.state.Step {
			return
		}
		slog.Warn("step timed out", "runId", t.runID, "step", t.step, "dataKey", step.DataKey)
		o.emit(models.ProgressEvent{
			Message: fmt.Sprintf("Timed out waiting for %s, skipping", step.Name),
			Status:  models.ProgressWarning,
			DataKey: step.DataKey,
		})
		o.persist(ctx)
		o.scheduleAdvance(o.opts.TimeoutGrace)
	case timerAdvance:
		o.advance(ctx)
	}
}

// advance moves to the next step, or completes the run past the last one.
func (o *Orchestrator) advance(ctx context.Context) {
	o.state.Step++
	o.armed = 0
	if o.state.Step > o.state.TotalSteps {
		o.complete(ctx)
		return
	}

	step, _ := o.activeStep()
	target := Target{
		RunID: o.state.RunID,
		URL:   o.state.BaseURL + step.Path(o.state.CruiseLine),
		Brand: o.state.CruiseLine,
		Step:  step,
	}
	o.emit(models.ProgressEvent{
		Message: fmt.Sprintf("Loading %s (%d/%d)", step.Name, o.state.Step, o.state.TotalSteps),
		Status:  models.ProgressLoading,
		DataKey: step.DataKey,
	})
	o.navigate(target, o.state.Step)
	o.persist(ctx)
	o.after(o.opts.StepTimeout, timerMsg{kind: timerStepTimeout, runID: o.state.RunID, step: o.state.Step})
}

func (o *Orchestrator) complete(ctx context.Context) {
	o.cancelTimers()
	o.state.Step = o.state.TotalSteps
	summary := Summarize(o.opts.Steps, o.state.CapturedData)

	data, err := json.Marshal(o.state.CapturedData)
	if err != nil {
		slog.Error("aggregate captured data", "runId", o.state.RunID, "error", err)
		data = json.RawMessage(`{}`)
	}

	o.state.IsRunning = false
	o.state.Status = models.StatusCompleted
	if summary.CapturedSteps == 0 && o.navErrors > 0 {
		o.state.Status = models.StatusError
	}
	o.state.Summary = &summary

	slog.Info("sync completed", "runId", o.state.RunID, "status", o.state.Status,
		"captured", summary.CapturedSteps, "skipped", summary.SkippedSteps, "offers", summary.Offers)
	o.emit(models.ProgressEvent{
		Message: fmt.Sprintf("Sync complete: %d of %d steps captured", summary.CapturedSteps, o.state.TotalSteps),
		Status:  models.ProgressCompleted,
		Data:    data,
		Summary: &summary,
	})
	o.persist(ctx)
}

func (o *Orchestrator) navigate(t Target, step int) {
	if o.nav == nil {
		return
	}
	navCtx, cancel := context.WithTimeout(o.runCtx, o.opts.StepTimeout)
	tabID := o.state.TabID
	go func() {
		defer cancel()
		err := o.nav.Navigate(navCtx, tabID, t)
		o.post(navResult{runID: t.RunID, step: step, err: err})
	}()
}

// scheduleAdvance arms the single pending advance for the active step.
func (o *Orchestrator) scheduleAdvance(d time.Duration) {
	if o.armed == o.state.Step {
		return
	}
	o.armed = o.state.Step
	o.after(d, timerMsg{kind: timerAdvance, runID: o.state.RunID, step: o.state.Step})
}

func (o *Orchestrator) after(d time.Duration, m timerMsg) {
	t := time.AfterFunc(d, func() { o.post(m) })
	o.timers = append(o.timers, t)
}

func (o *Orchestrator) cancelTimers() {
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	if o.runCancel != nil {
		o.runCancel()
		o.runCancel = nil
	}
}

// current reports whether a tagged message still refers to the live step.
func (o *Orchestrator) current(runID string, step int) bool {
	return o.state.IsRunning && runID == o.state.RunID && step == o.state.Step
}

func (o *Orchestrator) activeStep() (models.StepDefinition, bool) {
	i := o.state.Step - 1
	if i < 0 || i >= len(o.opts.Steps) {
		return models.StepDefinition{}, false
	}
	return o.opts.Steps[i], true
}

func (o *Orchestrator) emit(ev models.ProgressEvent) {
	ev.RunID = o.state.RunID
	ev.Step = o.state.Step
	ev.TotalSteps = o.state.TotalSteps
	ev.At = o.opts.Now()
	o.state.LastProgress = &ev
	if o.pub != nil {
		o.pub.Publish(ev)
	}
}

func (o *Orchestrator) persist(ctx context.Context) {
	o.state.UpdatedAt = o.opts.Now()
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, o.state.Clone()); err != nil {
		slog.Warn("persist sync state", "runId", o.state.RunID, "error", err)
	}
}

func brandLabel(b models.Brand) string {
	if b == models.BrandCelebrity {
		return "Celebrity Cruises"
	}
	return "Royal Caribbean"
}

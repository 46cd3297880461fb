// Package aggregator turns test runner lifecycle events into a single Xray execution report.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acarl005/stripansi"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/pending"
	"github.com/codalotl/xrayreport/internal/testkey"
	"github.com/codalotl/xrayreport/internal/types"
)

// DefaultSummary is used when the runner configuration declares no name.
const DefaultSummary = "no name"

var (
	ErrDuplicateKey       = errors.New("duplicate test key")
	ErrUnknownTest        = errors.New("unknown test")
	ErrSpecNotStarted     = errors.New("spec not started")
	ErrSpecAlreadyStarted = errors.New("spec already started")
	ErrSpecAlreadyDone    = errors.New("spec already done")
	ErrAlreadyPrepared    = errors.New("run already prepared")
	ErrRunFinished        = errors.New("run already finished")
	ErrNotDelivered       = errors.New("report not delivered")
)

type Aggregator struct {
	opts     Options
	log      *zap.Logger
	observer Observer
	now      func() time.Time

	mu    sync.RWMutex
	tests *orderedmap.OrderedMap[string, *testEntry]
	// done holds spec ids whose completion has been claimed.
	done     map[string]struct{}
	summary  string
	prepared chan struct{}

	pending *pending.Set

	runCtx    context.Context
	cancelRun context.CancelCauseFunc
	fatalMu   sync.Mutex
	fatal     error

	// finalizing rejects new suites and specs once OnRunDone starts. closed rejects
	// every event once the pending specs have drained.
	finalizing atomic.Bool
	closed     atomic.Bool
	final      *types.Report
}

type testEntry struct {
	mu     sync.Mutex
	key    string
	start  time.Time
	finish time.Time
	status types.Status
	steps  []sequencedStep
}

type sequencedStep struct {
	seq  int
	step types.StepResult
}

func New(opts Options) (*Aggregator, error) {
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if opts.ScreenshotPolicy == "" {
		opts.ScreenshotPolicy = ScreenshotOnFailure
	}
	if opts.KeyDelimiter == "" {
		opts.KeyDelimiter = testkey.DefaultDelimiter
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	runCtx, cancel := context.WithCancelCause(context.Background())
	return &Aggregator{
		opts:      opts,
		log:       log.Named("aggregator"),
		observer:  observer,
		now:       now,
		tests:     orderedmap.New[string, *testEntry](),
		done:      map[string]struct{}{},
		summary:   opts.Info.Summary,
		pending:   pending.New(),
		runCtx:    runCtx,
		cancelRun: cancel,
	}, nil
}

// OnRunPrepare resolves the run configuration in the background and sets the report summary from it.
// The returned channel receives the retrieval result once and is then closed.
func (a *Aggregator) OnRunPrepare(ctx context.Context, src ConfigSource) <-chan error {
	result := make(chan error, 1)
	a.mu.Lock()
	if a.prepared != nil {
		a.mu.Unlock()
		result <- ErrAlreadyPrepared
		close(result)
		return result
	}
	prepared := make(chan struct{})
	a.prepared = prepared
	a.mu.Unlock()

	go func() {
		defer close(result)
		defer close(prepared)
		cfg, err := src.RunConfig(ctx)
		if err != nil {
			a.log.Warn("run configuration unavailable", zap.Error(err))
		}
		name := strings.TrimSpace(cfg.Capabilities.Name)
		a.mu.Lock()
		if a.summary == "" {
			a.summary = name
		}
		if a.summary == "" {
			a.summary = DefaultSummary
		}
		summary := a.summary
		a.mu.Unlock()
		a.log.Debug("run prepared", zap.String("summary", summary))
		result <- err
	}()
	return result
}

// OnSuiteStart adds a test for the key embedded in the suite description.
func (a *Aggregator) OnSuiteStart(suite types.Suite) error {
	if a.finalizing.Load() {
		return ErrRunFinished
	}
	key, err := testkey.ExtractWith(suite.Description, a.opts.KeyDelimiter)
	if err != nil {
		if a.opts.IgnoreUnkeyedSuites {
			a.log.Debug("ignoring suite without key", zap.String("suite", suite.Description))
			return nil
		}
		return a.fail(fmt.Errorf("suite %q: %w", suite.Description, err))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.tests.Get(key); exists {
		return a.fail(fmt.Errorf("%w: %s", ErrDuplicateKey, key))
	}
	a.tests.Set(key, &testEntry{key: key, start: a.now()})
	a.log.Debug("suite started", zap.String("test_key", key))
	return nil
}

// OnSpecStart registers the spec as pending. Its start order fixes its step position.
func (a *Aggregator) OnSpecStart(spec types.Spec) error {
	if a.finalizing.Load() {
		return ErrRunFinished
	}
	seq, err := a.pending.Register(spec.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpecAlreadyStarted, err)
	}
	a.observer.PendingSpecs(a.pending.Len())
	a.log.Debug("spec started", zap.String("spec", spec.ID), zap.Int("seq", seq))
	return nil
}

// OnSpecDone records the spec's step under its test. When evidence is needed the step is
// completed in the background; OnRunDone waits for it. A started spec may complete while
// OnRunDone is waiting.
func (a *Aggregator) OnSpecDone(spec types.Spec) error {
	if a.closed.Load() {
		return ErrRunFinished
	}
	seq, ok := a.pending.Ordinal(spec.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSpecNotStarted, spec.ID)
	}
	if err := a.claim(spec.ID); err != nil {
		return err
	}

	entry, err := a.lookup(spec.FullName)
	if err != nil {
		err = a.fail(fmt.Errorf("spec %s: %w", spec.ID, err))
		a.resolve(spec.ID)
		return err
	}

	if spec.Status == types.SpecDisabled {
		entry.appendStep(seq, types.StepResult{Status: types.StatusTodo})
		a.observer.SpecCompleted(types.StatusTodo)
		a.resolve(spec.ID)
		return nil
	}

	status := types.StatusPass
	if spec.Status != types.SpecPassed {
		status = types.StatusFail
	}
	entry.recordStatus(status)
	a.observer.SpecCompleted(status)

	step := types.StepResult{Status: status}
	if status == types.StatusFail {
		step.Comment = failureComment(spec.FailedExpectations)
	}

	if a.opts.Collector != nil && a.opts.ScreenshotPolicy.wants(status) {
		go a.completeWithEvidence(entry, seq, spec, step)
		return nil
	}
	entry.appendStep(seq, step)
	a.resolve(spec.ID)
	return nil
}

func (a *Aggregator) completeWithEvidence(entry *testEntry, seq int, spec types.Spec, step types.StepResult) {
	defer a.resolve(spec.ID)

	ctx := a.runCtx
	if a.opts.EvidenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.EvidenceTimeout)
		defer cancel()
	}
	started := time.Now()
	evidences, err := a.opts.Collector.Gather(ctx, spec)
	if err != nil {
		_ = a.fail(fmt.Errorf("gather evidence for spec %s: %w", spec.ID, err))
		return
	}
	a.observer.EvidenceGathered(len(evidences), time.Since(started))
	step.Evidences = evidences
	entry.appendStep(seq, step)
}

// OnSuiteDone stamps the finish time of the suite's test.
func (a *Aggregator) OnSuiteDone(suite types.Suite) error {
	if a.closed.Load() {
		return ErrRunFinished
	}
	key, err := testkey.ExtractWith(suite.Description, a.opts.KeyDelimiter)
	if err != nil {
		if a.opts.IgnoreUnkeyedSuites {
			return nil
		}
		return a.fail(fmt.Errorf("suite %q: %w", suite.Description, err))
	}
	a.mu.RLock()
	entry, ok := a.tests.Get(key)
	a.mu.RUnlock()
	if !ok {
		return a.fail(fmt.Errorf("%w: %s", ErrUnknownTest, key))
	}
	entry.mu.Lock()
	entry.finish = a.now()
	entry.mu.Unlock()
	a.log.Debug("suite done", zap.String("test_key", key))
	return nil
}

// OnRunDone waits for every pending spec and the run configuration, then delivers the report.
// A fatal error recorded during the run aborts delivery.
func (a *Aggregator) OnRunDone(ctx context.Context) error {
	if !a.finalizing.CompareAndSwap(false, true) {
		return ErrRunFinished
	}
	defer a.cancelRun(ErrRunFinished)

	a.log.Debug("waiting for pending specs", zap.Int("pending", a.pending.Len()))
	err := a.pending.Wait(ctx)
	a.closed.Store(true)
	if err != nil {
		return err
	}
	a.mu.RLock()
	prepared := a.prepared
	a.mu.RUnlock()
	if prepared != nil {
		select {
		case <-prepared:
		case <-ctx.Done():
			return fmt.Errorf("waiting for run configuration: %w", ctx.Err())
		}
	}
	if err := a.fatalErr(); err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}

	report := a.finalize()
	started := time.Now()
	err = a.opts.Sink.Deliver(ctx, report)
	a.observer.Delivered(time.Since(started), err)
	if err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	a.mu.Lock()
	a.final = report
	a.mu.Unlock()
	a.log.Info("report delivered", zap.Int("tests", len(report.Tests)), zap.String("summary", report.Info.Summary))
	return nil
}

// Report returns the report handed to the sink by a successful OnRunDone.
func (a *Aggregator) Report() (*types.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.final == nil {
		return nil, ErrNotDelivered
	}
	return a.final, nil
}

// Err returns the first fatal error recorded so far.
func (a *Aggregator) Err() error {
	return a.fatalErr()
}

func (a *Aggregator) finalize() *types.Report {
	a.mu.RLock()
	defer a.mu.RUnlock()

	info := a.opts.Info
	info.Summary = a.summary
	if info.Summary == "" {
		info.Summary = DefaultSummary
	}
	report := &types.Report{Info: info, Tests: []types.TestResult{}}
	for pair := a.tests.Oldest(); pair != nil; pair = pair.Next() {
		if result, ok := pair.Value.result(a.opts.TestComment); ok {
			report.Tests = append(report.Tests, result)
		}
	}
	return report
}

func (a *Aggregator) lookup(fullName string) (*testEntry, error) {
	key, err := testkey.ExtractWith(fullName, a.opts.KeyDelimiter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownTest, err)
	}
	a.mu.RLock()
	entry, ok := a.tests.Get(key)
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTest, key)
	}
	return entry, nil
}

func (a *Aggregator) claim(specID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.done[specID]; ok {
		return fmt.Errorf("%w: %s", ErrSpecAlreadyDone, specID)
	}
	a.done[specID] = struct{}{}
	return nil
}

func (a *Aggregator) resolve(specID string) {
	if err := a.pending.Resolve(specID); err != nil {
		a.log.Warn("resolve spec", zap.String("spec", specID), zap.Error(err))
	}
	a.observer.PendingSpecs(a.pending.Len())
}

// fail records err as the run's fatal error if none is recorded yet and returns it.
func (a *Aggregator) fail(err error) error {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	if a.fatal == nil {
		a.fatal = err
		a.cancelRun(err)
		a.log.Error("run failed", zap.Error(err))
	}
	return err
}

func (a *Aggregator) fatalErr() error {
	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	return a.fatal
}

// recordStatus applies a step status: FAIL is sticky, PASS only fills an unset status.
func (e *testEntry) recordStatus(status types.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if status == types.StatusFail || e.status == "" {
		e.status = status
	}
}

func (e *testEntry) appendStep(seq int, step types.StepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = append(e.steps, sequencedStep{seq: seq, step: step})
}

// result renders the entry; ok is false when no spec ever completed under it.
func (e *testEntry) result(comment string) (types.TestResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == "" {
		return types.TestResult{}, false
	}
	ordered := make([]sequencedStep, len(e.steps))
	copy(ordered, e.steps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].seq < ordered[j].seq
	})
	steps := make([]types.StepResult, 0, len(ordered))
	for _, s := range ordered {
		steps = append(steps, s.step)
	}
	out := types.TestResult{
		TestKey: e.key,
		Start:   types.FormatTimestamp(e.start),
		Status:  e.status,
		Comment: comment,
		Steps:   steps,
	}
	if !e.finish.IsZero() {
		out.Finish = types.FormatTimestamp(e.finish)
	}
	return out, true
}

func failureComment(expectations []types.FailedExpectation) string {
	var b strings.Builder
	for _, exp := range expectations {
		b.WriteString(stripansi.Strip(exp.Message))
	}
	return b.String()
}

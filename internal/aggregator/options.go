package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/types"
)

// ScreenshotPolicy decides which completed specs get evidence.
type ScreenshotPolicy string

const (
	ScreenshotNever     ScreenshotPolicy = "never"
	ScreenshotOnFailure ScreenshotPolicy = "on-failure"
	ScreenshotAlways    ScreenshotPolicy = "always"
)

// ParseScreenshotPolicy accepts never, on-failure (the default for ""), and always.
func ParseScreenshotPolicy(s string) (ScreenshotPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ScreenshotOnFailure, nil
	case "never":
		return ScreenshotNever, nil
	case "on-failure", "onfailure", "failure":
		return ScreenshotOnFailure, nil
	case "always":
		return ScreenshotAlways, nil
	default:
		return "", fmt.Errorf("unknown screenshot policy %q (want never, on-failure, or always)", s)
	}
}

func (p ScreenshotPolicy) wants(status types.Status) bool {
	switch p {
	case ScreenshotAlways:
		return true
	case ScreenshotNever:
		return false
	default:
		return status == types.StatusFail
	}
}

// Gatherer collects evidence for a completed spec.
type Gatherer interface {
	Gather(ctx context.Context, spec types.Spec) ([]types.Evidence, error)
}

// Sink delivers the finished report.
type Sink interface {
	Deliver(ctx context.Context, report *types.Report) error
}

// ConfigSource resolves the runner's processed configuration.
type ConfigSource interface {
	RunConfig(ctx context.Context) (types.RunConfig, error)
}

type ConfigSourceFunc func(ctx context.Context) (types.RunConfig, error)

func (f ConfigSourceFunc) RunConfig(ctx context.Context) (types.RunConfig, error) {
	return f(ctx)
}

// StaticConfig is a ConfigSource that is already resolved.
type StaticConfig types.RunConfig

func (c StaticConfig) RunConfig(context.Context) (types.RunConfig, error) {
	return types.RunConfig(c), nil
}

// Observer receives run statistics. metrics.Collector implements it.
type Observer interface {
	SpecCompleted(status types.Status)
	EvidenceGathered(count int, took time.Duration)
	PendingSpecs(n int)
	Delivered(took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) SpecCompleted(types.Status)          {}
func (nopObserver) EvidenceGathered(int, time.Duration) {}
func (nopObserver) PendingSpecs(int)                    {}
func (nopObserver) Delivered(time.Duration, error)      {}

type Options struct {
	// Info seeds the report header. Summary, when set, wins over the runner's name.
	Info             types.Info
	ScreenshotPolicy ScreenshotPolicy
	// TestComment is copied onto every test in the report.
	TestComment  string
	KeyDelimiter string
	// IgnoreUnkeyedSuites skips suites without an embedded key (nested describe blocks)
	// instead of failing the run.
	IgnoreUnkeyedSuites bool
	// Collector may be nil, in which case steps never carry evidence.
	Collector Gatherer
	Sink      Sink
	// EvidenceTimeout bounds each spec's evidence gathering. Zero means no limit.
	EvidenceTimeout time.Duration
	Clock           func() time.Time
	Logger          *zap.Logger
	Observer        Observer
}

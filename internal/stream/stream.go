// Package stream reads runner lifecycle events as JSON lines and feeds them to an aggregator.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codalotl/xrayreport/internal/aggregator"
	"github.com/codalotl/xrayreport/internal/types"
)

type Kind string

const (
	RunStarted   Kind = "runStarted"
	SuiteStarted Kind = "suiteStarted"
	SpecStarted  Kind = "specStarted"
	SpecDone     Kind = "specDone"
	SuiteDone    Kind = "suiteDone"
	RunDone      Kind = "runDone"
)

// maxLine bounds a single event; failure stacks can be long.
const maxLine = 16 << 20

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMissingPayload = errors.New("missing event payload")
	ErrNoRunDone      = errors.New("stream ended before runDone")
)

// Event is one line of the stream.
type Event struct {
	Kind   Kind             `json:"event"`
	Config *types.RunConfig `json:"config,omitempty"`
	Suite  *types.Suite     `json:"suite,omitempty"`
	Spec   *types.Spec      `json:"spec,omitempty"`
}

// Handler receives decoded events. *aggregator.Aggregator implements it.
type Handler interface {
	OnRunPrepare(ctx context.Context, src aggregator.ConfigSource) <-chan error
	OnSuiteStart(suite types.Suite) error
	OnSpecStart(spec types.Spec) error
	OnSpecDone(spec types.Spec) error
	OnSuiteDone(suite types.Suite) error
	OnRunDone(ctx context.Context) error
}

type Decoder struct {
	sc   *bufio.Scanner
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Decoder{sc: sc}
}

// Line is the line number of the last event returned.
func (d *Decoder) Line() int {
	return d.line
}

// Next returns the next event, skipping blank lines. It returns io.EOF at the end of input.
func (d *Decoder) Next() (Event, error) {
	for d.sc.Scan() {
		d.line++
		text := strings.TrimSpace(d.sc.Text())
		if text == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return Event{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		if err := ev.validate(); err != nil {
			return Event{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	return Event{}, io.EOF
}

func (e Event) validate() error {
	switch e.Kind {
	case RunStarted, RunDone:
		return nil
	case SuiteStarted, SuiteDone:
		if e.Suite == nil {
			return fmt.Errorf("%w: %s needs suite", ErrMissingPayload, e.Kind)
		}
	case SpecStarted, SpecDone:
		if e.Spec == nil || e.Spec.ID == "" {
			return fmt.Errorf("%w: %s needs spec with id", ErrMissingPayload, e.Kind)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownEvent, e.Kind)
	}
	return nil
}

// Dispatch feeds every event from r to h until runDone, returning the result of OnRunDone.
func Dispatch(ctx context.Context, r io.Reader, h Handler) error {
	dec := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return ErrNoRunDone
		}
		if err != nil {
			return err
		}
		if ev.Kind == RunDone {
			return h.OnRunDone(ctx)
		}
		if err := deliver(ctx, h, ev); err != nil {
			return fmt.Errorf("line %d: %s: %w", dec.Line(), ev.Kind, err)
		}
	}
}

func deliver(ctx context.Context, h Handler, ev Event) error {
	switch ev.Kind {
	case RunStarted:
		var cfg types.RunConfig
		if ev.Config != nil {
			cfg = *ev.Config
		}
		h.OnRunPrepare(ctx, aggregator.StaticConfig(cfg))
		return nil
	case SuiteStarted:
		return h.OnSuiteStart(*ev.Suite)
	case SpecStarted:
		return h.OnSpecStart(*ev.Spec)
	case SpecDone:
		return h.OnSpecDone(*ev.Spec)
	case SuiteDone:
		return h.OnSuiteDone(*ev.Suite)
	default:
		return fmt.Errorf("%w %q", ErrUnknownEvent, ev.Kind)
	}
}

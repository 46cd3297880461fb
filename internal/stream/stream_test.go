package stream

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/xrayreport/internal/aggregator"
	"github.com/codalotl/xrayreport/internal/types"
)

type captureSink struct {
	mu     sync.Mutex
	report *types.Report
}

func (s *captureSink) Deliver(_ context.Context, r *types.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
	return nil
}

func TestDecoderSkipsBlankLines(t *testing.T) {
	t.Parallel()

	dec := NewDecoder(strings.NewReader("\n  \n{\"event\":\"runDone\"}\n"))
	ev, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, RunDone, ev.Kind)
	require.Equal(t, 3, dec.Line())
	_, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsBadEvents(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		`{"event":"specSkipped","spec":{"id":"a"}}`: ErrUnknownEvent,
		`{"event":"suiteStarted"}`:                  ErrMissingPayload,
		`{"event":"specDone","spec":{}}`:            ErrMissingPayload,
	}
	for line, want := range cases {
		_, err := NewDecoder(strings.NewReader(line)).Next()
		require.ErrorIs(t, err, want, line)
		require.Contains(t, err.Error(), "line 1")
	}

	_, err := NewDecoder(strings.NewReader("{not json")).Next()
	require.Error(t, err)
}

func TestDispatchSampleRun(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/run.jsonl")
	require.NoError(t, err)
	defer f.Close()

	sink := &captureSink{}
	agg, err := aggregator.New(aggregator.Options{
		Sink:             sink,
		ScreenshotPolicy: aggregator.ScreenshotNever,
		Clock:            func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	require.NoError(t, Dispatch(context.Background(), f, agg))

	report := sink.report
	require.NotNil(t, report)
	require.Equal(t, "chrome e2e", report.Info.Summary)
	require.Len(t, report.Tests, 2)

	login := report.Tests[0]
	require.Equal(t, "PROJ-1", login.TestKey)
	require.Equal(t, types.StatusFail, login.Status)
	require.Equal(t, []types.StepResult{
		{Status: types.StatusPass},
		{Status: types.StatusFail, Comment: "Expected 'Welcome' to equal 'Invalid password'."},
		{Status: types.StatusTodo},
	}, login.Steps)

	search := report.Tests[1]
	require.Equal(t, "PROJ-2", search.TestKey)
	require.Equal(t, types.StatusPass, search.Status)
	require.Equal(t, "2024-05-01T08:00:00+00:00", search.Finish)
}

func TestDispatchWithoutRunDone(t *testing.T) {
	t.Parallel()

	agg, err := aggregator.New(aggregator.Options{Sink: &captureSink{}})
	require.NoError(t, err)
	in := `{"event":"suiteStarted","suite":{"id":"s","description":"A @PROJ-1"}}`
	require.ErrorIs(t, Dispatch(context.Background(), strings.NewReader(in), agg), ErrNoRunDone)
}

func TestDispatchStopsOnHandlerError(t *testing.T) {
	t.Parallel()

	agg, err := aggregator.New(aggregator.Options{Sink: &captureSink{}})
	require.NoError(t, err)
	in := strings.Join([]string{
		`{"event":"suiteStarted","suite":{"id":"s1","description":"A @PROJ-1"}}`,
		`{"event":"suiteStarted","suite":{"id":"s2","description":"B @PROJ-1"}}`,
		`{"event":"runDone"}`,
	}, "\n")
	err = Dispatch(context.Background(), strings.NewReader(in), agg)
	require.ErrorIs(t, err, aggregator.ErrDuplicateKey)
	require.Contains(t, err.Error(), "line 2: suiteStarted")
}

func TestDispatchHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg, err := aggregator.New(aggregator.Options{Sink: &captureSink{}})
	require.NoError(t, err)
	require.ErrorIs(t, Dispatch(ctx, strings.NewReader(`{"event":"runDone"}`), agg), context.Canceled)
}

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/xrayreport/internal/config"
	"github.com/codalotl/xrayreport/internal/types"
)

func sampleReport() *types.Report {
	return &types.Report{
		Info: types.Info{Summary: "chrome"},
		Tests: []types.TestResult{{
			TestKey: "PROJ-1",
			Start:   "2024-05-01T10:00:00+00:00",
			Status:  types.StatusPass,
			Steps:   []types.StepResult{{Status: types.StatusPass}},
		}},
	}
}

func TestXraySinkPostsReport(t *testing.T) {
	t.Parallel()

	var (
		mu                  sync.Mutex
		method, path, ctype string
		user, pass          string
		authOK              bool
		got                 types.Report
		decodeErr           error
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		user, pass, authOK = r.BasicAuth()
		decodeErr = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewXraySink(XrayOptions{URL: srv.URL + "/rest/raven/1.0/import/execution", User: "jira-bot", Password: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/rest/raven/1.0/import/execution", path)
	require.Equal(t, "application/json", ctype)
	require.True(t, authOK)
	require.Equal(t, "jira-bot", user)
	require.Equal(t, "s3cret", pass)
	require.NoError(t, decodeErr)
	require.Equal(t, *sampleReport(), got)
}

func TestXraySinkNon200(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(code)
			_, _ = io.WriteString(w, "  Test with key PROJ-1 not found \n")
		}))

		sink, err := NewXraySink(XrayOptions{URL: srv.URL, User: "u", Password: "p"})
		require.NoError(t, err)
		err = sink.Deliver(context.Background(), sampleReport())
		srv.Close()

		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		require.Equal(t, code, de.StatusCode)
		require.Equal(t, "Test with key PROJ-1 not found", de.Body)
		require.Contains(t, err.Error(), "PROJ-1 not found")
	}
}

func TestXraySinkRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewXraySink(XrayOptions{URL: " ", User: "u"})
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Problems, 2)
}

func TestFileSinkWritesIndentedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "reports", "run-{runID}.json"), "abc", nil)
	require.Equal(t, filepath.Join(dir, "reports", "run-abc.json"), sink.Path())
	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	require.Contains(t, string(data), "\n  \"tests\": [")
	var back types.Report
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, *sampleReport(), back)
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(data))
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkKeyAndBody(t *testing.T) {
	t.Parallel()

	putter := &fakePutter{}
	sink := newS3Sink(putter, S3Options{Bucket: "reports", Prefix: "/ci/nightly/", RunID: "r1"})
	require.Equal(t, "ci/nightly/xray-r1.json", sink.Key())
	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))

	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	require.Equal(t, "reports", aws.ToString(in.Bucket))
	require.Equal(t, "ci/nightly/xray-r1.json", aws.ToString(in.Key))
	require.Equal(t, "application/json", aws.ToString(in.ContentType))
	require.Contains(t, putter.bodies[0], `"testKey": "PROJ-1"`)
}

func TestS3SinkError(t *testing.T) {
	t.Parallel()

	boom := errors.New("access denied")
	sink := newS3Sink(&fakePutter{err: boom}, S3Options{Bucket: "b", Key: "fixed.json"})
	err := sink.Deliver(context.Background(), sampleReport())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "s3://b/fixed.json")
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Sink(context.Background(), S3Options{})
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestS3SinkAgainstEndpoint(t *testing.T) {
	t.Parallel()

	var (
		mu           sync.Mutex
		method, path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path = r.Method, r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewS3Sink(context.Background(), S3Options{
		Bucket:    "reports",
		Prefix:    "ci",
		Endpoint:  srv.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		PathStyle: true,
		RunID:     "r2",
	})
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(context.Background(), sampleReport()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, http.MethodPut, method)
	require.Equal(t, "/reports/ci/xray-r2.json", path)
}

type recordingSink struct {
	calls *[]string
	name  string
	err   error
}

func (s recordingSink) Deliver(context.Context, *types.Report) error {
	*s.calls = append(*s.calls, s.name)
	return s.err
}

func TestMultiStopsAtFirstError(t *testing.T) {
	t.Parallel()

	var calls []string
	boom := errors.New("boom")
	multi := Multi{
		recordingSink{calls: &calls, name: "file"},
		recordingSink{calls: &calls, name: "xray", err: boom},
		recordingSink{calls: &calls, name: "s3"},
	}
	err := multi.Deliver(context.Background(), sampleReport())
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "sink 2 of 3")
	require.Equal(t, []string{"file", "xray"}, calls)
}

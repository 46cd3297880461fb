package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatTimestampOffsets(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 10, 11, 12, 987_000_000, time.UTC)
	require.Equal(t, "2024-05-01T10:11:12+00:00", FormatTimestamp(base))

	plus3 := time.FixedZone("EEST", 3*60*60)
	require.Equal(t, "2024-05-01T13:11:12+03:00", FormatTimestamp(base.In(plus3)))

	minus530 := time.FixedZone("", -(5*60*60 + 30*60))
	require.Equal(t, "2024-05-01T04:41:12-05:30", FormatTimestamp(base.In(minus530)))
}

func TestReportJSONFieldNames(t *testing.T) {
	t.Parallel()

	rep := Report{
		Info: Info{Summary: "nightly", Description: "desc", Version: "1.0"},
		Tests: []TestResult{
			{
				TestKey: "PROJ-1",
				Start:   "2024-05-01T10:11:12+00:00",
				Finish:  "2024-05-01T10:12:12+00:00",
				Status:  StatusFail,
				Steps: []StepResult{
					{Status: StatusFail, Comment: "boom", Evidences: []Evidence{{Data: "aGk=", Filename: "screenshot.png", ContentType: "image/png"}}},
					{Status: StatusTodo},
				},
			},
		},
	}
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	want := `{"info":{"summary":"nightly","description":"desc","version":"1.0"},"tests":[{"testKey":"PROJ-1","start":"2024-05-01T10:11:12+00:00","finish":"2024-05-01T10:12:12+00:00","status":"FAIL","steps":[{"status":"FAIL","comment":"boom","evidences":[{"data":"aGk=","filename":"screenshot.png","contentType":"image/png"}]},{"status":"TODO"}]}]}`
	require.JSONEq(t, want, string(data))
}

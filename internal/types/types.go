package types

import "time"

// Status is the Xray status of a test or a step.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusTodo Status = "TODO"
)

// Info is the test execution header sent to Xray.
type Info struct {
	Summary          string   `json:"summary,omitempty" yaml:"summary"`
	Description      string   `json:"description,omitempty" yaml:"description"`
	Version          string   `json:"version,omitempty" yaml:"version"`
	User             string   `json:"user,omitempty" yaml:"user"`
	Revision         string   `json:"revision,omitempty" yaml:"revision"`
	StartDate        string   `json:"startDate,omitempty" yaml:"start-date"`
	FinishDate       string   `json:"finishDate,omitempty" yaml:"finish-date"`
	TestPlanKey      string   `json:"testPlanKey,omitempty" yaml:"test-plan-key"`
	TestEnvironments []string `json:"testEnvironments,omitempty" yaml:"test-environments"`
}

type Evidence struct {
	Data        string `json:"data"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type StepResult struct {
	Status    Status     `json:"status"`
	Comment   string     `json:"comment,omitempty"`
	Evidences []Evidence `json:"evidences,omitempty"`
}

type TestResult struct {
	TestKey string       `json:"testKey"`
	Start   string       `json:"start"`
	Finish  string       `json:"finish,omitempty"`
	Status  Status       `json:"status,omitempty"`
	Comment string       `json:"comment,omitempty"`
	Steps   []StepResult `json:"steps"`
}

// Report is the Xray import-execution payload.
type Report struct {
	Info  Info         `json:"info"`
	Tests []TestResult `json:"tests"`
}

// SpecStatus is the runner's outcome for a single spec.
type SpecStatus string

const (
	SpecPassed   SpecStatus = "passed"
	SpecFailed   SpecStatus = "failed"
	SpecDisabled SpecStatus = "disabled"
	SpecPending  SpecStatus = "pending"
	SpecExcluded SpecStatus = "excluded"
)

type FailedExpectation struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Suite is the runner's description of a suite start or completion.
type Suite struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	FullName    string `json:"fullName"`
}

// Spec is the runner's description of a spec start or completion.
type Spec struct {
	ID                 string              `json:"id"`
	Description        string              `json:"description"`
	FullName           string              `json:"fullName"`
	Status             SpecStatus          `json:"status,omitempty"`
	FailedExpectations []FailedExpectation `json:"failedExpectations,omitempty"`
}

// Capabilities mirrors the subset of runner capabilities the report reads.
type Capabilities struct {
	Name        string `json:"name,omitempty" yaml:"name"`
	BrowserName string `json:"browserName,omitempty" yaml:"browser-name"`
}

// RunConfig is the processed runner configuration.
type RunConfig struct {
	Capabilities Capabilities `json:"capabilities"`
}

// TimestampLayout renders ISO-8601 seconds with an explicit ±HH:MM offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// FormatTimestamp renders t in its own location, e.g. 2024-05-01T10:00:00+03:00.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Package delivery hands a finished report to its destinations.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codalotl/xrayreport/internal/types"
)

// RunIDPlaceholder is replaced by the run id in file paths and object keys.
const RunIDPlaceholder = "{runID}"

type Sink interface {
	Deliver(ctx context.Context, report *types.Report) error
}

// DeliveryError is a non-200 answer from Xray.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("xray responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("xray responded with status %d: %s", e.StatusCode, e.Body)
}

// Multi delivers to each sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, report *types.Report) error {
	for i, sink := range m {
		if err := sink.Deliver(ctx, report); err != nil {
			if len(m) == 1 {
				return err
			}
			return fmt.Errorf("sink %d of %d: %w", i+1, len(m), err)
		}
	}
	return nil
}

func expandRunID(s, runID string) string {
	return strings.ReplaceAll(s, RunIDPlaceholder, runID)
}

func marshalIndent(report *types.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

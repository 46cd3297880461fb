package delivery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/fsutil"
	"github.com/codalotl/xrayreport/internal/types"
)

// FileSink writes the report as indented JSON.
type FileSink struct {
	path string
	log  *zap.Logger
}

// NewFileSink expands {runID} in path.
func NewFileSink(path, runID string, log *zap.Logger) *FileSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSink{path: expandRunID(path, runID), log: log.Named("file")}
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Deliver(ctx context.Context, report *types.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalIndent(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := fsutil.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.log.Info("wrote report", zap.String("path", s.path))
	return nil
}

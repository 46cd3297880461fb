package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/aggregator"
	"github.com/codalotl/xrayreport/internal/config"
	"github.com/codalotl/xrayreport/internal/delivery"
	"github.com/codalotl/xrayreport/internal/evidence"
	"github.com/codalotl/xrayreport/internal/logging"
	"github.com/codalotl/xrayreport/internal/metrics"
	"github.com/codalotl/xrayreport/internal/output"
	"github.com/codalotl/xrayreport/internal/stream"
	"github.com/codalotl/xrayreport/internal/summary"
	"github.com/codalotl/xrayreport/internal/types"
)

// These function variables allow tests to stub external dependencies.
var (
	lookupEnv = os.LookupEnv
	newLogger = logging.NewLogger
)

// session holds everything one run needs.
type session struct {
	cfg     *config.Config
	runID   string
	log     *zap.Logger
	metrics *metrics.Collector
	agg     *aggregator.Aggregator
	printer *output.Printer
	// destinations describes the configured sinks for the final message.
	destinations []string
}

func newSession(ctx context.Context, flags *globalFlags, out io.Writer) (*session, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := flags.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	baseLog, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	log := baseLog.With(zap.String("run_id", runID))
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	s := &session{
		cfg:     cfg,
		runID:   runID,
		log:     log,
		metrics: metrics.NewCollector(),
		printer: output.NewPrinter(out),
	}
	if flags.noColor {
		s.printer = output.NewPlainPrinter(out)
	}
	sink, err := s.buildSink(ctx)
	if err != nil {
		return nil, err
	}
	collector, err := s.buildCollector()
	if err != nil {
		return nil, err
	}
	s.agg, err = aggregator.New(aggregator.Options{
		Info:                cfg.ReportInfo(),
		ScreenshotPolicy:    cfg.ScreenshotPolicy(),
		TestComment:         cfg.TestComment,
		KeyDelimiter:        cfg.KeyDelimiter,
		IgnoreUnkeyedSuites: cfg.IgnoreUnkeyedSuites,
		Collector:           collector,
		Sink:                sink,
		EvidenceTimeout:     cfg.EvidenceTimeout,
		Logger:              log,
		Observer:            s.metrics,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) buildSink(ctx context.Context) (aggregator.Sink, error) {
	var sinks delivery.Multi
	if s.cfg.File != nil {
		fs := delivery.NewFileSink(s.cfg.File.Path, s.runID, s.log)
		sinks = append(sinks, fs)
		s.destinations = append(s.destinations, fs.Path())
	}
	if s.cfg.S3 != nil {
		c := s.cfg.S3
		s3Sink, err := delivery.NewS3Sink(ctx, delivery.S3Options{
			Bucket:       c.Bucket,
			Prefix:       c.Prefix,
			Key:          c.Key,
			Region:       c.Region,
			Endpoint:     c.Endpoint,
			AccessKey:    c.AccessKey,
			SecretKey:    c.SecretKey,
			SessionToken: c.SessionToken,
			PathStyle:    c.PathStyle,
			RunID:        s.runID,
			Logger:       s.log,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
		s.destinations = append(s.destinations, fmt.Sprintf("s3://%s/%s", c.Bucket, s3Sink.Key()))
	}
	if !s.cfg.Xray.Disabled {
		xray, err := delivery.NewXraySink(delivery.XrayOptions{
			URL:      s.cfg.Xray.URL,
			User:     s.cfg.Xray.User,
			Password: s.cfg.Xray.Password,
			Timeout:  s.cfg.Xray.Timeout,
			Logger:   s.log,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, xray)
		s.destinations = append(s.destinations, "Xray")
	}
	return sinks, nil
}

// buildCollector returns nil when neither screenshots nor diff images are configured.
func (s *session) buildCollector() (aggregator.Gatherer, error) {
	var opts evidence.Options
	if s.cfg.ScreenshotCommand != "" {
		shooter, err := evidence.NewCommandScreenshotter(s.cfg.ScreenshotCommand, "")
		if err != nil {
			return nil, fmt.Errorf("screenshot-command: %w", err)
		}
		opts.Screenshotter = shooter
	}
	if ic := s.cfg.ImageComparison; ic != nil {
		opts.Diff = &evidence.DiffConfig{
			Folder:           ic.DiffFolder,
			BrowserName:      ic.BrowserName,
			BrowserWidth:     ic.BrowserWidth,
			BrowserHeight:    ic.BrowserHeight,
			DevicePixelRatio: ic.DevicePixelRatio,
		}
	}
	if opts.Screenshotter == nil && opts.Diff == nil {
		return nil, nil
	}
	opts.KeyDelimiter = s.cfg.KeyDelimiter
	opts.Logger = s.log
	return evidence.New(opts), nil
}

// consume feeds r into the aggregator and reports the outcome.
func (s *session) consume(ctx context.Context, r io.Reader) error {
	started := time.Now()
	s.log.Debug("consuming events")
	err := stream.Dispatch(ctx, r, s.agg)
	if err != nil {
		return err
	}
	report, err := s.agg.Report()
	if err != nil {
		return err
	}
	if err := s.printer.Raw(summary.Format(report, s.printer.Colored())); err != nil {
		return err
	}
	for _, test := range report.Tests {
		if test.Status != types.StatusFail {
			continue
		}
		if err := s.printer.Status(test.Status, test.TestKey+": "+failedStepComments(test)); err != nil {
			return err
		}
	}
	return s.printer.Appf("Delivered %d tests to %v in %s.", len(report.Tests), s.destinations, time.Since(started).Round(time.Millisecond))
}

func failedStepComments(test types.TestResult) string {
	var comments []string
	for _, step := range test.Steps {
		if step.Status == types.StatusFail && step.Comment != "" {
			comments = append(comments, step.Comment)
		}
	}
	return strings.Join(comments, " | ")
}

// close writes metrics and flushes the logger.
func (s *session) close() error {
	defer func() { _ = s.log.Sync() }()
	if s.cfg.Metrics.Path == "" {
		return nil
	}
	if err := s.metrics.Write(s.cfg.Metrics.Path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Package evidence gathers the screenshot and visual-diff images attached to a step.
package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/fsutil"
	"github.com/codalotl/xrayreport/internal/testkey"
	"github.com/codalotl/xrayreport/internal/types"
)

const (
	ScreenshotFilename = "screenshot.png"
	DiffFilename       = "diff.png"
	pngContentType     = "image/png"
)

var ErrScreenshot = errors.New("screenshot failed")

// EvidenceReadError is a diff image that exists but could not be read.
type EvidenceReadError struct {
	Path string
	Err  error
}

func (e *EvidenceReadError) Error() string {
	return fmt.Sprintf("read evidence %s: %v", e.Path, e.Err)
}

func (e *EvidenceReadError) Unwrap() error {
	return e.Err
}

// Screenshotter captures the current state of the system under test as PNG bytes.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// DiffConfig locates visual-regression diff images written by the image comparison plugin.
type DiffConfig struct {
	Folder           string
	BrowserName      string
	BrowserWidth     int
	BrowserHeight    int
	DevicePixelRatio float64
}

// ImageName is <specID>-<browser>-<width>x<height>-dpr-<ratio>.png.
func (d DiffConfig) ImageName(specID string) string {
	var b strings.Builder
	b.WriteString(specID)
	b.WriteString("-")
	b.WriteString(d.BrowserName)
	b.WriteString("-")
	b.WriteString(strconv.Itoa(d.BrowserWidth))
	b.WriteString("x")
	b.WriteString(strconv.Itoa(d.BrowserHeight))
	b.WriteString("-dpr-")
	b.WriteString(strconv.FormatFloat(d.DevicePixelRatio, 'f', -1, 64))
	b.WriteString(".png")
	return b.String()
}

// ImagePath joins ImageName onto Folder, refusing ids that would escape it.
func (d DiffConfig) ImagePath(specID string) (string, error) {
	return fsutil.SafeJoin(d.Folder, d.ImageName(specID))
}

type Options struct {
	// Screenshotter may be nil, in which case no screenshot is taken.
	Screenshotter Screenshotter
	// Diff is nil when image comparison is not configured.
	Diff         *DiffConfig
	KeyDelimiter string
	Logger       *zap.Logger
}

type Collector struct {
	screenshotter Screenshotter
	diff          *DiffConfig
	delimiter     string
	log           *zap.Logger
}

func New(opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		screenshotter: opts.Screenshotter,
		diff:          opts.Diff,
		delimiter:     opts.KeyDelimiter,
		log:           log.Named("evidence"),
	}
}

// Gather captures a screenshot and reads the spec's diff image concurrently.
// The screenshot, when present, always comes first.
func (c *Collector) Gather(ctx context.Context, spec types.Spec) ([]types.Evidence, error) {
	var screenshot, diff *types.Evidence

	p := pool.New().
		WithErrors().
		WithFirstError().
		WithContext(ctx).
		WithCancelOnError()
	if c.screenshotter != nil {
		p.Go(func(ctx context.Context) error {
			ev, err := c.captureScreenshot(ctx)
			if err != nil {
				return err
			}
			screenshot = ev
			return nil
		})
	}
	if path := c.diffPath(spec); path != "" {
		p.Go(func(ctx context.Context) error {
			ev, err := readDiff(path)
			if err != nil {
				return err
			}
			diff = ev
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var out []types.Evidence
	if screenshot != nil {
		out = append(out, *screenshot)
	}
	if diff != nil {
		out = append(out, *diff)
	}
	c.log.Debug("gathered evidence", zap.String("spec", spec.ID), zap.Int("count", len(out)))
	return out, nil
}

func (c *Collector) captureScreenshot(ctx context.Context) (*types.Evidence, error) {
	png, err := c.screenshotter.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScreenshot, err)
	}
	return &types.Evidence{
		Data:        base64.StdEncoding.EncodeToString(png),
		Filename:    ScreenshotFilename,
		ContentType: pngContentType,
	}, nil
}

func (c *Collector) diffPath(spec types.Spec) string {
	if c.diff == nil {
		return ""
	}
	specID, err := testkey.ExtractWith(spec.Description, c.delimiter)
	if err != nil {
		return ""
	}
	path, err := c.diff.ImagePath(specID)
	if err != nil {
		c.log.Warn("ignoring diff image", zap.String("spec", spec.ID), zap.Error(err))
		return ""
	}
	return path
}

// readDiff returns nil evidence when the image does not exist.
func readDiff(path string) (*types.Evidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &EvidenceReadError{Path: path, Err: err}
	}
	return &types.Evidence{
		Data:        base64.StdEncoding.EncodeToString(data),
		Filename:    DiffFilename,
		ContentType: pngContentType,
	}, nil
}

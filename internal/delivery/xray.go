package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codalotl/xrayreport/internal/config"
	"github.com/codalotl/xrayreport/internal/types"
)

const maxErrorBody = 64 << 10

type XrayOptions struct {
	URL      string
	User     string
	Password string
	// Timeout applies when Client is nil. Zero means no timeout.
	Timeout time.Duration
	Client  *http.Client
	Logger  *zap.Logger
}

// XraySink posts the report to the Xray import-execution endpoint with basic auth.
type XraySink struct {
	url      string
	user     string
	password string
	client   *http.Client
	log      *zap.Logger
}

func NewXraySink(opts XrayOptions) (*XraySink, error) {
	var problems []string
	if strings.TrimSpace(opts.URL) == "" {
		problems = append(problems, "xray url is required")
	}
	if opts.User == "" {
		problems = append(problems, "jira user is required")
	}
	if opts.Password == "" {
		problems = append(problems, "jira password is required")
	}
	if len(problems) > 0 {
		return nil, &config.ConfigurationError{Problems: problems}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &XraySink{
		url:      strings.TrimSpace(opts.URL),
		user:     opts.User,
		password: opts.Password,
		client:   client,
		log:      log.Named("xray"),
	}, nil
}

func (s *XraySink) Deliver(ctx context.Context, report *types.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build xray request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.user, s.password)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to xray: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	s.log.Info("pushed test execution to Xray", zap.String("url", s.url), zap.Int("tests", len(report.Tests)))
	return nil
}

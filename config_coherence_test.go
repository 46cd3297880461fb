package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codalotl/xrayreport/internal/aggregator"
	"github.com/codalotl/xrayreport/internal/config"
)

func TestExampleConfigIsCoherent(t *testing.T) {
	env := map[string]string{config.EnvJiraPassword: "example"}
	cfg, err := config.Load(config.LoadOptions{
		Path: "xrayreport.example.yml",
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(), "example config must validate once a password is supplied")

	require.Equal(t, aggregator.ScreenshotOnFailure, cfg.ScreenshotPolicy())
	require.NotEmpty(t, cfg.ScreenshotCommand, "example should show how screenshots are captured")
	require.NotNil(t, cfg.ImageComparison)
	require.NotNil(t, cfg.File)
	require.Contains(t, cfg.File.Path, "{runID}")

	bare, err := config.Load(config.LoadOptions{
		Path:      "xrayreport.example.yml",
		LookupEnv: func(string) (string, bool) { return "", false },
	})
	require.NoError(t, err)
	require.Empty(t, bare.Xray.Password, "example config must not carry a password")
}

package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ossanalytics/ossanalytics/internal/observability"
)

func TestInitCLILogger(t *testing.T) {
	observability.InitCLILogger("ossanalytics-test", true)
	require.NotNil(t, observability.CLILogger)
	observability.CLILogger.Debug("collecting", zap.String("package", "d3-array"))
}

func TestInitServerLogger(t *testing.T) {
	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:     "ossanalytics-test",
		Level:       "debug",
		Environment: "test",
		Namespace:   "ossanalytics",
	})
	t.Cleanup(func() { observability.ServerLogger = nil })

	require.NotNil(t, observability.ServerLogger)
	require.Same(t, observability.ServerLogger, observability.Logger())
	observability.ServerLogger.Info("serving datasets", zap.Int("packages", 3))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" warn ":  "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		require.Equal(t, want, observability.ParseLogLevel(in), in)
	}
}

func TestEmbeddedCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
}

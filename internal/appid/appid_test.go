package appid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/require"

	appidentityassets "github.com/ossanalytics/ossanalytics/internal/assets/appidentity"
)

func prepareIdentityForTest(t *testing.T) {
	t.Helper()

	// gofulmen caches identity per process.
	appidentity.Reset()
	require.NoError(t, appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML))
	t.Cleanup(func() { appidentity.Reset() })
}

func TestGetEmbeddedIdentityOutsideRepo(t *testing.T) {
	prepareIdentityForTest(t)
	t.Setenv(appidentity.EnvIdentityPath, "")

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Chdir(t.TempDir()))

	identity, err := Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ossanalytics", identity.BinaryName)
	require.Equal(t, "OSSANALYTICS_", EnvPrefix(identity))
	require.Equal(t, "ossanalytics", ConfigName(identity))
}

func TestGetExplicitPathIsAuthoritative(t *testing.T) {
	prepareIdentityForTest(t)
	t.Setenv(appidentity.EnvIdentityPath, filepath.Join(t.TempDir(), "missing-app.yaml"))

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %T: %v", err, err)
}

func TestFallbackNames(t *testing.T) {
	require.Equal(t, "OSSANALYTICS_", EnvPrefix(nil))
	require.Equal(t, "ossanalytics", ConfigName(nil))
	require.Equal(t, "CUSTOM_", EnvPrefix(&appidentity.Identity{EnvPrefix: "CUSTOM"}))
	require.Equal(t, "tool", ConfigName(&appidentity.Identity{BinaryName: "tool"}))
}

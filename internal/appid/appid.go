// Package appid exposes the application identity (binary name, env prefix,
// config name) with an embedded fallback for standalone binaries.
package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/ossanalytics/ossanalytics/internal/assets/appidentity"
)

// DefaultName is used when the identity cannot be loaded.
const DefaultName = "ossanalytics"

func init() {
	// An explicit identity path still wins over the embedded copy.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity env prefix with a trailing underscore.
func EnvPrefix(identity *appidentity.Identity) string {
	prefix := strings.ToUpper(DefaultName) + "_"
	if identity != nil && strings.TrimSpace(identity.EnvPrefix) != "" {
		prefix = identity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// ConfigName returns the name used for XDG directories.
func ConfigName(identity *appidentity.Identity) string {
	if identity == nil {
		return DefaultName
	}
	if name := strings.TrimSpace(identity.ConfigName); name != "" {
		return name
	}
	if name := strings.TrimSpace(identity.BinaryName); name != "" {
		return name
	}
	return DefaultName
}

// Package appid resolves the storelens app identity (binary name, env prefix,
// config name) used by config, logging and telemetry.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/storelens/storelens/internal/assets/appidentity"
)

func init() {
	// The embedded identity only applies when no .fulmen/app.yaml is found and
	// FULMEN_APP_IDENTITY_PATH is unset, so a standalone binary still resolves.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the resolved identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return appidentity.Get(ctx)
}

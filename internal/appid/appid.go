package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// Default is the identity used when no `.fulmen/app.yaml` is discoverable,
// which is the normal case for an installed binary.
var Default = appidentity.Identity{
	BinaryName:  "pricewise",
	EnvPrefix:   "PRICEWISE_",
	ConfigName:  "pricewise",
	Description: "PriceWise pricing consultation backend",
}

// Get returns the discovered app identity, falling back to Default.
// Explicit overrides (FULMEN_APP_IDENTITY_PATH) stay authoritative.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	identity, err := appidentity.Get(ctx)
	if err == nil && identity != nil && identity.BinaryName != "" {
		return identity, nil
	}
	if err != nil && strings.TrimSpace(os.Getenv(appidentity.EnvIdentityPath)) != "" {
		return nil, err
	}
	fallback := Default
	return &fallback, nil
}

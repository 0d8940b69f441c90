package appid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/require"
)

func TestGet_DefaultIdentityOutsideRepo(t *testing.T) {
	appidentity.Reset()
	t.Cleanup(func() { appidentity.Reset() })
	t.Setenv(appidentity.EnvIdentityPath, "")

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Chdir(t.TempDir()))

	identity, err := Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pricewise", identity.BinaryName)
	require.Equal(t, "PRICEWISE_", identity.EnvPrefix)
}

func TestGet_ReturnsCopy(t *testing.T) {
	appidentity.Reset()
	t.Cleanup(func() { appidentity.Reset() })

	first, err := Get(context.Background())
	require.NoError(t, err)
	first.BinaryName = "mutated"

	second, err := Get(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, "mutated", second.BinaryName)
}

func TestGet_EnvVarRemainsAuthoritative(t *testing.T) {
	appidentity.Reset()
	t.Cleanup(func() { appidentity.Reset() })

	t.Setenv(appidentity.EnvIdentityPath, filepath.Join(t.TempDir(), "missing-app.yaml"))

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	require.True(t, errors.As(err, &notFound), "expected NotFoundError, got %T", err)
}

package keyprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/test/helpers"
)

func TestRegistry_SharesEquivalentOptions(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	registry := NewRegistry(NewAzureFactory(), nil)
	assert.Equal(t, "azure", registry.Name())

	first, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)
	second, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)

	// Equivalent options share one underlying provider.
	assert.Equal(t, 1, registry.Count())
	assert.Same(t, first.Credentials(), second.Credentials())

	other := simOptions(sim.URL())
	other[OptVaultURL] = "https://othervault.vault.example.net"
	third, err := registry.Provider(context.Background(), testEnvironment(), other)
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Count())
	assert.NotSame(t, first.Credentials(), third.Credentials())

	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
	require.NoError(t, third.Close())
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_ClosesOnLastRelease(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	registry := NewRegistry(NewAzureFactory(), nil)

	first, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)
	second, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)

	creds := first.Credentials()

	// Releasing one handle keeps the provider alive for the other.
	require.NoError(t, first.Close())
	assert.Equal(t, 1, registry.Count())

	_, err = second.Token(context.Background())
	require.NoError(t, err)

	// The closed handle rejects use while the provider lives on.
	_, err = first.Token(context.Background())
	assert.ErrorIs(t, err, ErrProviderClosed)

	require.NoError(t, second.Close())
	assert.Equal(t, 0, registry.Count())

	_, err = creds.Token(context.Background(), "scope")
	assert.ErrorIs(t, err, identity.ErrCredentialsClosed)
}

func TestRegistry_HandleCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	registry := NewRegistry(NewAzureFactory(), nil)

	first, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)
	second, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)
	defer second.Close()

	// Double close releases a single reference.
	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	assert.Equal(t, 1, registry.Count())

	_, err = second.Token(context.Background())
	require.NoError(t, err)
}

func TestRegistry_ConstructionErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(NewAzureFactory(), nil)

	opts := Options{OptTenantID: "tenant"}
	_, err := registry.Provider(context.Background(), nil, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, 0, registry.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	registry := NewRegistry(NewAzureFactory(), nil)

	first, err := registry.Provider(context.Background(), testEnvironment(), simOptions(sim.URL()))
	require.NoError(t, err)

	other := simOptions(sim.URL())
	other[OptVaultURL] = "https://othervault.vault.example.net"
	second, err := registry.Provider(context.Background(), testEnvironment(), other)
	require.NoError(t, err)

	require.Len(t, registry.Providers(), 2)
	require.NoError(t, registry.CloseAll())
	assert.Equal(t, 0, registry.Count())

	// Outstanding handles release as no-ops afterwards.
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
}

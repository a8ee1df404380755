package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGet(t *testing.T) {
	r := Default()

	entry, err := r.Get("base")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), entry.ChainID.Int64())
	assert.Equal(t, 6, entry.Decimals)

	_, err = r.Get("eip155:1")
	assert.Error(t, err)
}

func TestIsAsset(t *testing.T) {
	r := Default()
	assert.True(t, r.IsAsset("base", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"))
	assert.True(t, r.IsAsset("base", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"))
	assert.False(t, r.IsAsset("base", "0x0000000000000000000000000000000000dead"))
	assert.False(t, r.IsAsset("unknown-network", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"))
}

func TestNetworksSorted(t *testing.T) {
	r := Default()
	networks := r.Networks()
	assert.Equal(t, []string{"base", "base-sepolia", "polygon", "polygon-amoy"}, networks)
}

func TestSupportedKinds(t *testing.T) {
	r := Default()
	kinds := r.SupportedKinds()
	require.Len(t, kinds, 4)
	for _, k := range kinds {
		assert.Equal(t, "exact", k.Scheme)
		require.NotNil(t, k.Extra)
	}
}

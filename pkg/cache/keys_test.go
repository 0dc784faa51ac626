package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKey(t *testing.T) {
	type params struct {
		Query string `json:"query"`
		Page  int    `json:"page"`
	}

	k1, err := BuildKey("search", params{Query: "ahmed", Page: 1})
	require.NoError(t, err)
	k2, err := BuildKey("search", params{Query: "ahmed", Page: 1})
	require.NoError(t, err)
	k3, err := BuildKey("search", params{Query: "ahmed", Page: 2})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k1, "search:"))
	assert.Len(t, strings.TrimPrefix(k1, "search:"), 16)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestBuildKey_MapOrderIndependent(t *testing.T) {
	a, err := BuildKey("ns", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := BuildKey("ns", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildKey_Unmarshalable(t *testing.T) {
	_, err := BuildKey("ns", make(chan int))
	assert.Error(t, err)
}

func TestQuickHash(t *testing.T) {
	h := QuickHash([]byte("test data"))

	assert.Len(t, h, 64)
	assert.Equal(t, h, QuickHash([]byte("test data")))
	assert.NotEqual(t, h, QuickHash([]byte("other data")))
}

func TestShortHash(t *testing.T) {
	assert.Len(t, ShortHash([]byte("test data")), 16)
}

package authz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapability_Has(t *testing.T) {
	tests := []struct {
		name     string
		granted  Capability
		required Capability
		want     bool
	}{
		{"exact match", CapReadPosts, CapReadPosts, true},
		{"superset", CapAll, CapWritePosts, true},
		{"missing", CapReadPosts, CapWritePosts, false},
		{"partial overlap", CapReadPosts | CapWritePosts, CapWritePosts | CapDeletePosts, false},
		{"zero requires nothing", CapReadPosts, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.granted.Has(tt.required))
		})
	}
}

func TestCapability_Names(t *testing.T) {
	c := CapReadPosts | CapManageCategories
	assert.Equal(t, []string{"read_posts", "manage_categories"}, c.Names())
	assert.Equal(t, "read_posts,manage_categories", c.String())
	assert.Equal(t, "none", Capability(0).String())
}

func TestParse(t *testing.T) {
	c, err := Parse([]string{"read_posts", "write_posts"})
	require.NoError(t, err)
	assert.Equal(t, CapReadPosts|CapWritePosts, c)

	c, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Capability(0), c)

	_, err = Parse([]string{"fly_to_moon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fly_to_moon")
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(CapAll, CapDeletePosts))
	require.NoError(t, Check(CapReadPosts, CapReadPosts))

	err := Check(CapReadPosts, CapWritePosts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, CapWritePosts, permErr.Missing)
}

func TestCheck_ReportsOnlyMissingBits(t *testing.T) {
	err := Check(CapReadPosts, CapReadPosts|CapDeletePosts)
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, CapDeletePosts, permErr.Missing)
}

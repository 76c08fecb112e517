package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeInsertAndLookup(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert("/users", 0))
	require.NoError(t, tree.Insert("/users/:id", 1))
	require.NoError(t, tree.Insert("/static/*path", 2))
	require.NoError(t, tree.Insert("/", 3))

	id, params, pattern, ok := tree.Lookup("/users")
	require.True(t, ok)
	assert.Equal(t, 0, id)
	assert.Empty(t, params)
	assert.Equal(t, "/users", pattern)

	id, params, _, ok = tree.Lookup("/users/42")
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.Equal(t, "42", params["id"])

	id, params, _, ok = tree.Lookup("/static/css/site.css")
	require.True(t, ok)
	assert.Equal(t, 2, id)
	assert.Equal(t, "css/site.css", params["path"])

	id, _, _, ok = tree.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestTreeStaticWinsOverParam(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert("/users/me", 0))
	require.NoError(t, tree.Insert("/users/:id", 1))

	id, params, _, ok := tree.Lookup("/users/me")
	require.True(t, ok)
	assert.Equal(t, 0, id)
	assert.Empty(t, params)

	id, _, _, ok = tree.Lookup("/users/you")
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestTreeMiss(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert("/users", 0))

	_, _, _, ok := tree.Lookup("/posts")
	assert.False(t, ok)
	_, _, _, ok = tree.Lookup("/users/42")
	assert.False(t, ok)
}

func TestTreeConflicts(t *testing.T) {
	cases := []struct {
		name  string
		setup []string
		path  string
	}{
		{"identical path", []string{"/users"}, "/users"},
		{"capture name mismatch", []string{"/users/:id"}, "/users/:uid"},
		{"catch-all name mismatch", []string{"/files/*path"}, "/files/*rest"},
		{"catch-all over static", []string{"/files/img"}, "/files/*rest"},
		{"static under catch-all", []string{"/files/*rest"}, "/files/img"},
		{"param under catch-all", []string{"/files/*rest"}, "/files/:id"},
		{"catch-all not final", nil, "/files/*rest/meta"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree := NewTree()
			for i, path := range tc.setup {
				require.NoError(t, tree.Insert(path, i))
			}
			err := tree.Insert(tc.path, 99)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestTreeEmptyPathIsRoot(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Insert("", 7))

	id, _, _, ok := tree.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

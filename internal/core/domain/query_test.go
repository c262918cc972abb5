package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuery_IdentityIsPureFunctionOfParams(t *testing.T) {
	a, err := NewQuery(KindFetch, map[string]any{"url": "https://example.com/a.png", "path": "assets/a.png"})
	require.NoError(t, err)
	b, err := NewQuery(KindFetch, map[string]any{"path": "assets/a.png", "url": "https://example.com/a.png"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 64)
}

func TestNewQuery_IdentityDependsOnKindAndParams(t *testing.T) {
	params := map[string]any{"path": "out.json"}
	fetch, err := NewQuery(KindFetch, params)
	require.NoError(t, err)
	shell, err := NewQuery(KindShell, params)
	require.NoError(t, err)
	other, err := NewQuery(KindFetch, map[string]any{"path": "other.json"})
	require.NoError(t, err)

	assert.NotEqual(t, fetch.ID, shell.ID)
	assert.NotEqual(t, fetch.ID, other.ID)
}

func TestNewQuery_NestedData(t *testing.T) {
	a, err := NewQuery(KindShell, map[string]any{"data": map[string]any{"b": 1.0, "a": []any{"x", nil}}})
	require.NoError(t, err)
	b, err := NewQuery(KindShell, map[string]any{"data": map[string]any{"a": []any{"x", nil}, "b": 1.0}})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, `{"data":{"a":["x",null],"b":1}}`, a.CanonicalParams())
}

func TestNewQuery_NilParams(t *testing.T) {
	q, err := NewQuery("ftp", nil)
	require.NoError(t, err)

	assert.NotNil(t, q.Params)
	assert.Equal(t, "", q.CanonicalParams())
	assert.Equal(t, "ftp:"+q.ID[:12], q.Describe())
}

func TestQuery_Accessors(t *testing.T) {
	q, err := NewQuery(KindFetch, map[string]any{"url": "https://example.com", "path": "x.html", "n": 3.0})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", q.URL())
	assert.Equal(t, "x.html", q.Path())
	assert.Equal(t, "", q.String("n"))
	assert.True(t, q.Has("n"))
	assert.False(t, q.Has("data"))
	assert.Equal(t, "https://example.com -> x.html", q.Describe())
	assert.Len(t, q.ShortID(), 12)
}

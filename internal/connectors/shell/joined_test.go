package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/fsutil"
)

func TestJoinedHandler_ResolveBatch(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	// repeats the digits of every number in the joined input: [1,3] -> [11,33]
	h := NewJoinedHandler(root, []string{"sed", `s/\([0-9][0-9]*\)/\1\1/g`})

	qs := []domain.Query{
		shellQuery(t, map[string]any{"path": "one.json", "data": float64(1)}),
		shellQuery(t, map[string]any{"path": "../escape.json", "data": float64(5)}),
		shellQuery(t, map[string]any{"path": "out/three.json", "data": float64(3)}),
	}

	results, err := h.ResolveBatch(context.Background(), qs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "one.json", results[0].Payload.Path)
	assert.Equal(t, fsutil.HashBytes([]byte("11")), results[0].Payload.Hash)

	assert.ErrorIs(t, results[1].Err, domain.ErrInvalidQuery)

	require.NoError(t, results[2].Err)
	data, err := os.ReadFile(filepath.Join(root, "out", "three.json"))
	require.NoError(t, err)
	assert.Equal(t, "33", string(data))
}

func TestJoinedHandler_PassesDataAsArray(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	h := NewJoinedHandler(root, []string{"cat"})

	qs := []domain.Query{
		shellQuery(t, map[string]any{"path": "a.json", "data": map[string]any{"name": "a"}}),
		shellQuery(t, map[string]any{"path": "b.json"}),
	}
	results, err := h.ResolveBatch(context.Background(), qs)
	require.NoError(t, err)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	a, err := os.ReadFile(filepath.Join(root, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(a))
	b, err := os.ReadFile(filepath.Join(root, "b.json"))
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestJoinedHandler_Resolve(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	h := NewJoinedHandler(root, []string{"cat"})

	payload, err := h.Resolve(context.Background(),
		shellQuery(t, map[string]any{"path": "single.json", "data": []any{"x"}}))
	require.NoError(t, err)
	assert.Equal(t, "single.json", payload.Path)

	data, err := os.ReadFile(filepath.Join(root, "single.json"))
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, string(data))
}

func TestJoinedHandler_Errors(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name    string
		command []string
		wantErr error
	}{
		{name: "command fails", command: []string{"sh", "-c", "cat >/dev/null; exit 2"}, wantErr: domain.ErrTransport},
		{name: "output too short", command: []string{"sh", "-c", `cat >/dev/null; echo '[1]'`}, wantErr: domain.ErrInvalidQuery},
		{name: "output not an array", command: []string{"sh", "-c", `cat >/dev/null; echo '{"a": 1}'`}, wantErr: domain.ErrInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			h := NewJoinedHandler(root, tt.command)
			qs := []domain.Query{
				shellQuery(t, map[string]any{"path": "a.json", "data": 1}),
				shellQuery(t, map[string]any{"path": "b.json", "data": 2}),
			}

			results, err := h.ResolveBatch(context.Background(), qs)
			require.Error(t, err)
			assert.Nil(t, results)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, domain.IsRetryable(err))
			assert.NoFileExists(t, filepath.Join(root, "a.json"))
		})
	}
}

func TestJoinedHandler_NoValidRecords(t *testing.T) {
	h := NewJoinedHandler(t.TempDir(), []string{"prequery-no-such-command"})

	results, err := h.ResolveBatch(context.Background(), []domain.Query{
		shellQuery(t, map[string]any{"data": 1}),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, domain.ErrInvalidQuery)
}

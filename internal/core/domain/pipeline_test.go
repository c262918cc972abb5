package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineState_Transitions(t *testing.T) {
	tests := []struct {
		from, to PipelineState
		want     bool
	}{
		{StateIdle, StateReading, true},
		{StateReading, StateResolving, true},
		{StateResolving, StateWriting, true},
		{StateWriting, StateDone, true},
		{StateIdle, StateResolving, false},
		{StateReading, StateWriting, false},
		{StateResolving, StateDone, false},
		{StateIdle, StateFailed, true},
		{StateReading, StateFailed, true},
		{StateResolving, StateFailed, true},
		{StateWriting, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateReading, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestRunSummary_Tally(t *testing.T) {
	ok, err := NewQuery(KindFetch, map[string]any{"url": "https://a", "path": "a"})
	require.NoError(t, err)
	bad, err := NewQuery(KindFetch, map[string]any{"url": "https://b", "path": "b"})
	require.NoError(t, err)
	gone, err := NewQuery(KindFetch, map[string]any{"url": "https://c", "path": "c"})
	require.NoError(t, err)

	results := NewResultSet()
	results.Put(Succeeded(ok, Payload{}, 1, time.Now()))
	results.Put(Failed(bad, errors.New("boom"), 3))
	results.Put(Cancelled(gone, 0))

	s := &RunSummary{State: StateDone}
	s.Tally(results, results.IDs())

	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Len(t, s.Failures, 2)
	assert.False(t, s.OK())

	s.Tally(results, []string{ok.ID})
	assert.True(t, s.OK())
}

func TestRunSummary_Duration(t *testing.T) {
	start := time.Now()
	s := &RunSummary{StartedAt: start}
	assert.Zero(t, s.Duration())

	s.EndedAt = start.Add(2 * time.Second)
	assert.Equal(t, 2*time.Second, s.Duration())
}

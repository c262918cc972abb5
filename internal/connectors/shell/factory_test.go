package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

func selector(s string) domain.QuerySpec {
	return domain.QuerySpec{Selector: &s}
}

func TestJobFactory_Plan(t *testing.T) {
	job := domain.Job{
		Name:    "plots",
		Kind:    JobKind,
		Query:   selector("<plot>"),
		Options: domain.Options{"command": []any{"python3", "plot.py"}},
	}

	plan, err := NewJobFactory().Plan(job, domain.Project{Input: "thesis/main.typ"}, domain.DefaultRunOptions())
	require.NoError(t, err)

	assert.Equal(t, domain.TypstQuery{Selector: "<plot>", Field: "value"}, plan.Query)
	assert.Equal(t, domain.KindShell, plan.RecordKind)
	assert.Equal(t, DefaultIndex, plan.IndexName)
	assert.Equal(t, 1, plan.Options.Concurrency)
	require.Len(t, plan.Handlers, 1)

	h, ok := plan.Handlers[0].(*Handler)
	require.True(t, ok)
	assert.Equal(t, []string{"python3", "plot.py"}, h.command)
	assert.Equal(t, "thesis", h.root)
}

func TestJobFactory_Joined(t *testing.T) {
	job := domain.Job{
		Name:    "plots",
		Kind:    JobKind,
		Query:   selector("<plot>"),
		Options: domain.Options{"command": "./plot-all.py", "joined": true},
	}

	plan, err := NewJobFactory().Plan(job, domain.Project{Input: "main.typ"}, domain.DefaultRunOptions())
	require.NoError(t, err)
	require.Len(t, plan.Handlers, 1)

	h, ok := plan.Handlers[0].(*JoinedHandler)
	require.True(t, ok)
	assert.Equal(t, []string{"./plot-all.py"}, h.command)
	assert.Equal(t, domain.KindShell, h.Kind())
}

func TestJobFactory_Concurrency(t *testing.T) {
	tests := []struct {
		name    string
		options domain.Options
		want    int
	}{
		{name: "sequential by default", options: domain.Options{}, want: 1},
		{name: "concurrent", options: domain.Options{"concurrent": true}, want: domain.DefaultConcurrency},
		{name: "explicit concurrency", options: domain.Options{"concurrency": int64(4)}, want: 4},
		{name: "concurrent false", options: domain.Options{"concurrent": false}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.options["command"] = "./gen.sh"
			job := domain.Job{Name: "gen", Kind: JobKind, Query: selector("<gen>"), Options: tt.options}

			plan, err := NewJobFactory().Plan(job, domain.Project{}, domain.DefaultRunOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Options.Concurrency)
		})
	}
}

func TestJobFactory_Errors(t *testing.T) {
	one := true
	tests := []struct {
		name string
		job  domain.Job
	}{
		{name: "missing selector", job: domain.Job{Options: domain.Options{"command": "x"}}},
		{name: "missing command", job: domain.Job{Query: selector("<x>"), Options: domain.Options{}}},
		{name: "empty command", job: domain.Job{Query: selector("<x>"), Options: domain.Options{"command": []any{}}}},
		{name: "command not strings", job: domain.Job{Query: selector("<x>"), Options: domain.Options{"command": []any{1}}}},
		{name: "joined not a bool", job: domain.Job{Query: selector("<x>"), Options: domain.Options{"command": "x", "joined": "yes"}}},
		{name: "one", job: domain.Job{Query: domain.QuerySpec{Selector: ptr("<x>"), One: &one}, Options: domain.Options{"command": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.job.Name, tt.job.Kind = "gen", JobKind
			_, err := NewJobFactory().Plan(tt.job, domain.Project{}, domain.DefaultRunOptions())
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func ptr(s string) *string { return &s }

// File: cmd/jobs_test.go
package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/webpilot/internal/store"
)

// useStore points the jobs commands at st for the duration of the test.
func useStore(t *testing.T, st store.JobStore) {
	t.Helper()
	original := openStore
	openStore = func(context.Context, *app) (store.JobStore, func(), error) {
		return st, func() {}, nil
	}
	t.Cleanup(func() { openStore = original })
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()

	done, err := st.Insert(ctx, "extract price", "https://shop.example/pricing")
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(ctx, done.ID, store.StatusRunning))
	require.NoError(t, st.Finalize(ctx, done.ID, "$29/mo", nil, []string{"[12ms]: Navigated"}, time.Now(), store.StatusCompleted))

	_, err = st.Insert(ctx, "find the support email", "https://shop.example")
	require.NoError(t, err)
	return st
}

func TestJobs_RequiresDatabase(t *testing.T) {
	path := writeConfig(t, baseConfig)
	_, err := execute(t, context.Background(), "-c", path, "jobs", "list")
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestJobsList(t *testing.T) {
	useStore(t, seededStore(t))
	path := writeConfig(t, baseConfig)

	out, err := execute(t, context.Background(), "-c", path, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID  STATUS")
	assert.Regexp(t, `(?m)^2\s+pending\s+.*find the support email$`, out)
	assert.Regexp(t, `(?m)^1\s+completed\s+.*extract price$`, out)
	assert.Less(t, strings.Index(out, "find the support email"), strings.Index(out, "extract price"), "newest first")

	out, err = execute(t, context.Background(), "-c", path, "jobs", "list", "-o", "json")
	require.NoError(t, err)
	var jobs []store.Job
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	assert.Len(t, jobs, 2)
}

func TestJobsGet(t *testing.T) {
	useStore(t, seededStore(t))
	path := writeConfig(t, baseConfig)

	t.Run("Text", func(t *testing.T) {
		out, err := execute(t, context.Background(), "-c", path, "jobs", "get", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "Job 1: completed")
		assert.Contains(t, out, "Output:\n  $29/mo")
		assert.Contains(t, out, "  [12ms]: Navigated")
	})

	t.Run("Several As YAML", func(t *testing.T) {
		out, err := execute(t, context.Background(), "-c", path, "jobs", "get", "2", "1", "-o", "yaml")
		require.NoError(t, err)

		var got []map[string]interface{}
		require.NoError(t, yaml.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "pending", got[0]["status"], "argument order is preserved")
		assert.Equal(t, "completed", got[1]["status"])
		assert.NotContains(t, got[0], "transcript")
	})

	t.Run("Invalid ID", func(t *testing.T) {
		_, err := execute(t, context.Background(), "-c", path, "jobs", "get", "abc")
		assert.ErrorContains(t, err, `invalid job id "abc"`)
	})

	t.Run("Missing Job", func(t *testing.T) {
		_, err := execute(t, context.Background(), "-c", path, "jobs", "get", "1", "99")
		assert.ErrorIs(t, err, store.ErrJobNotFound)
		assert.ErrorContains(t, err, "job 99")
	})
}

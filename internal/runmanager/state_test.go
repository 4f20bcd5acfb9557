package runmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/runwatch/internal/model"
)

func TestUpdateState(t *testing.T) {
	t.Parallel()

	t.Run("idempotent", func(t *testing.T) {
		once := &model.Run{}
		updateState(once, model.StatusCompleted, at(time.Minute))
		twice := &model.Run{}
		updateState(twice, model.StatusCompleted, at(time.Minute))
		updateState(twice, model.StatusCompleted, at(time.Minute))
		assert.Equal(t, once, twice)
	})

	t.Run("stale update ignored after end", func(t *testing.T) {
		r := &model.Run{}
		updateState(r, model.StatusRunning, at(1*time.Minute))
		updateState(r, model.StatusCompleted, at(3*time.Minute))
		updateState(r, model.StatusRunning, at(2*time.Minute))
		assert.Equal(t, model.StatusCompleted, r.Status)
		require.NotNil(t, r.EndTime)
		assert.True(t, r.EndTime.Equal(at(3*time.Minute)))
		assert.True(t, r.StartTime.Equal(at(1*time.Minute)))
	})

	t.Run("start only moves earlier", func(t *testing.T) {
		r := &model.Run{}
		updateState(r, model.StatusRunning, at(2*time.Minute))
		updateState(r, model.StatusRunning, at(1*time.Minute))
		updateState(r, model.StatusRunning, at(5*time.Minute))
		assert.True(t, r.StartTime.Equal(at(1*time.Minute)))
	})

	t.Run("newer status reopens", func(t *testing.T) {
		r := &model.Run{}
		updateState(r, model.StatusFailed, at(1*time.Minute))
		updateState(r, model.StatusRunning, at(2*time.Minute))
		assert.Equal(t, model.StatusRunning, r.Status)
		assert.Nil(t, r.EndTime)
	})

	t.Run("run tasks follow the same rule", func(t *testing.T) {
		rt := &model.RunTask{Status: model.StatusPending}
		updateState(rt, model.StatusCompletedWithWarnings, at(time.Minute))
		updateState(rt, model.StatusCompletedWithWarnings, at(time.Minute))
		assert.Equal(t, model.StatusCompletedWithWarnings, rt.Status)
		require.NotNil(t, rt.EndTime)
		assert.True(t, rt.EndTime.Equal(at(time.Minute)))
	})
}

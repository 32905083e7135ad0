package qnetsim

import (
	"errors"
	"math"
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskSchedulerTimeSlices(t *testing.T) {
	evtMgr := evtm.New()
	ops := CreateTaskScheduler(2)

	slices := make([]string, 0)
	completed := make(map[string]*Task)
	finishedAt := make(map[string]float64)

	slice := func(task *Task, units int) error {
		assert.Equal(t, 1, units)
		assert.LessOrEqual(t, ops.InService(), 2)
		slices = append(slices, task.Msg.(string))
		return nil
	}
	complete := func(evtMgr *evtm.EventManager, context any, data any) any {
		task := data.(*Task)
		completed[context.(string)] = task
		finishedAt[context.(string)] = evtMgr.CurrentSeconds()
		return nil
	}

	assert.True(t, ops.Schedule(evtMgr, "work", 2, 1, "A", "A", slice, complete))
	assert.True(t, ops.Schedule(evtMgr, "work", 2, 1, "B", "B", slice, complete))
	assert.False(t, ops.Schedule(evtMgr, "work", 2, 1, "C", "C", slice, complete))
	assert.Equal(t, 2, ops.InService())
	assert.Equal(t, 1, ops.Waiting())

	evtMgr.Run(math.MaxFloat64)

	require.Len(t, completed, 3)
	require.Len(t, slices, 6)
	assert.ElementsMatch(t, []string{"A", "B"}, slices[:2])
	for name, task := range completed {
		assert.Equal(t, 2, task.Served(), name)
		assert.NoError(t, task.Err, name)
	}
	assert.Equal(t, 2.0, finishedAt["A"])
	assert.Equal(t, 3.0, finishedAt["C"])
	assert.Equal(t, 0, ops.InService())
	assert.Equal(t, 0, ops.Waiting())
}

func TestTaskSchedulerWholeService(t *testing.T) {
	evtMgr := evtm.New()
	ops := CreateTaskScheduler(0)

	calls := 0
	var done *Task
	slice := func(task *Task, units int) error {
		calls += 1
		assert.Equal(t, 3, units)
		return nil
	}
	complete := func(evtMgr *evtm.EventManager, context any, data any) any {
		done = data.(*Task)
		return nil
	}
	ops.Schedule(evtMgr, "work", 3, 5, nil, nil, slice, complete)
	evtMgr.Run(math.MaxFloat64)

	assert.Equal(t, 1, calls)
	require.NotNil(t, done)
	assert.Equal(t, 3, done.Served())
	assert.Equal(t, "work", done.OpType)
}

func TestTaskSchedulerSliceErrorEndsTask(t *testing.T) {
	evtMgr := evtm.New()
	ops := CreateTaskScheduler(1)
	boom := errors.New("boom")

	calls := 0
	var done *Task
	slice := func(task *Task, units int) error {
		calls += 1
		return boom
	}
	complete := func(evtMgr *evtm.EventManager, context any, data any) any {
		done = data.(*Task)
		return nil
	}
	ops.Schedule(evtMgr, "work", 4, 1, nil, nil, slice, complete)
	evtMgr.Run(math.MaxFloat64)

	assert.Equal(t, 1, calls)
	require.NotNil(t, done)
	assert.ErrorIs(t, done.Err, boom)
}

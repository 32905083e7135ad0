package qnetsim

// scheduler.go holds structs, methods and data structures that
// support cooperative scheduling of tasks over a limited number of workers

// When a task is scheduled the caller specifies how much service is required
// (in units of work, one simulation run per unit), and a time-slice.  If the time-slice
// is at least the residual requirement the task is served all at once.  Otherwise the task
// is given the time-slice amount of service, yields, and the residual task rejoins the
// queue.  Allocation of workers is first-come first-serve.  All of it happens on one
// evtm.EventManager, so the work of the tasks interleaves but never overlaps.

import (
	"container/heap"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// SliceFunc performs units of work of a task when it is given service.
// A non-nil error ends the task.
type SliceFunc func(task *Task, units int) error

// Task describes the service requirements of a share of work
type Task struct {
	OpType       string                    // what operation is being performed
	req          float64                   // residual service
	ts           float64                   // timeslice
	served       int                       // units of work already performed
	sliceFunc    SliceFunc                 // called for each slice of service
	completeFunc evtm.EventHandlerFunction // call when finished
	context      any                       // remember this from caller, to return when finished
	Msg          any                       // information package being carried
	Err          error                     // error that ended the task, if any
	index        int                       // position in the in-service heap
}

// Served gives the number of units of work the task has performed
func (task *Task) Served() int {
	return task.served
}

// createTask is a constructor
func createTask(op string, req, ts float64, msg any, context any, slice SliceFunc, complete evtm.EventHandlerFunction) *Task {
	return &Task{OpType: op, req: req, ts: ts, Msg: msg, context: context, sliceFunc: slice, completeFunc: complete}
}

// reqSrvHeap and its methods implement a min-priority heap
// on the residual service requirements of tasks
type reqSrvHeap []*Task

func (h reqSrvHeap) Len() int           { return len(h) }
func (h reqSrvHeap) Less(i, j int) bool { return h[i].req < h[j].req }
func (h reqSrvHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *reqSrvHeap) Push(x any) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *reqSrvHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	x.index = -1
	*h = old[0 : n-1]
	return x
}

// TaskScheduler holds data structures supporting cooperative scheduling over workers
type TaskScheduler struct {
	workers   int        // number of workers serving tasks
	waiting   []*Task    // work to do, not in service
	inservice reqSrvHeap // work being served
}

// sliceEvent is carried by the event marking the end of a time slice
type sliceEvent struct {
	task     *Task
	units    int
	finished bool
}

// CreateTaskScheduler is a constructor
func CreateTaskScheduler(workers int) *TaskScheduler {
	ops := new(TaskScheduler)
	ops.workers = max(workers, 1)
	ops.waiting = []*Task{}
	ops.inservice = []*Task{}
	heap.Init(&ops.inservice)
	return ops
}

// Schedule puts a piece of work either in queue to be done, or in service.  Parameters are
// - op : a code for the type of work being done
// - req : the units of work this task requires
// - ts  : timeslice, the units of work the task gets before yielding
// - context, msg : carried to the completion handler
// - slice : performs the work of each slice
// - complete : an event handler to be called when the task has completed
// The return is true if the task was placed immediately into service.
func (ops *TaskScheduler) Schedule(evtMgr *evtm.EventManager, op string, req, ts float64,
	context any, msg any, slice SliceFunc, complete evtm.EventHandlerFunction) bool {

	task := createTask(op, req, ts, msg, context, slice, complete)
	return ops.joinQueue(evtMgr, task)
}

// InService gives the number of tasks being served
func (ops *TaskScheduler) InService() int {
	return len(ops.inservice)
}

// Waiting gives the number of tasks waiting for a worker
func (ops *TaskScheduler) Waiting() int {
	return len(ops.waiting)
}

// joinQueue is called to put a Task into the data structure that governs
// allocation of service
func (ops *TaskScheduler) joinQueue(evtMgr *evtm.EventManager, task *Task) bool {
	// if all the workers are busy, put in the waiting queue and return
	if ops.workers <= len(ops.inservice) {
		ops.waiting = append(ops.waiting, task)
		return false
	}

	execute := task.ts
	finished := false
	if task.req <= task.ts {
		execute = task.req
		finished = true
	}

	// schedule event handler for when this timeslice completes
	evt := &sliceEvent{task: task, units: int(math.Round(execute)), finished: finished}
	evtMgr.Schedule(ops, evt, timeSliceComplete, vrtime.SecondsToTime(execute))

	task.req = math.Max(task.req-task.ts, 0.0)
	heap.Push(&ops.inservice, task)
	return true
}

// timeSliceComplete is called when the timeslice allocated to a task has completed.
// The work of the slice is performed here, after which the task yields its worker.
func timeSliceComplete(evtMgr *evtm.EventManager, context any, data any) any {
	ops := context.(*TaskScheduler)
	evt := data.(*sliceEvent)
	task := evt.task

	if task.index >= 0 && task.index < len(ops.inservice) {
		heap.Remove(&ops.inservice, task.index)
	}

	finished := evt.finished
	if task.sliceFunc != nil && evt.units > 0 {
		if err := task.sliceFunc(task, evt.units); err != nil {
			task.Err = err
			finished = true
		}
	}
	task.served += evt.units

	// if the waiting queue is not empty we need to put its first (FCFS) member into service
	if len(ops.waiting) > 0 {
		newtask := ops.waiting[0]
		ops.waiting = ops.waiting[1:]
		ops.joinQueue(evtMgr, newtask)
	}

	if finished {
		if task.completeFunc != nil {
			evtMgr.Schedule(task.context, task, task.completeFunc, vrtime.SecondsToTime(0.0))
		}
		return nil
	}

	// task.req > 0.0 so schedule up another round of service
	ops.joinQueue(evtMgr, task)
	return nil
}

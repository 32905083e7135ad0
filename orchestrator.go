package qnetsim

// orchestrator.go executes a batch of independent runs over a number of workers and
// merges their summary rows.  Three backends share the partitioning:
//   - cooperative: the workers are tasks of a TaskScheduler on one evtm event list,
//     each serving one run per time slice
//   - pool: one goroutine per worker
//   - process: one worker subprocess per share, fed a WorkerJob on stdin and answering
//     with an Arrow IPC stream of rows on stdout

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Partition divides runs over workers as evenly as possible, the first runs%workers
// workers taking one extra run.  There are never more workers than runs.
func Partition(runs, workers int) []int {
	if runs < 1 || workers < 1 {
		return []int{}
	}
	workers = min(workers, runs)
	shares := make([]int, workers)
	for idx := range shares {
		shares[idx] = runs / workers
		if idx < runs%workers {
			shares[idx] += 1
		}
	}
	return shares
}

// ShareRuns gives the run indices each worker executes: consecutive
// ranges sized by Partition
func ShareRuns(runs, workers int) [][]int {
	sizes := Partition(runs, workers)
	shares := make([][]int, 0, len(sizes))
	next := 0
	for _, size := range sizes {
		share := make([]int, size)
		for idx := range share {
			share[idx] = next
			next += 1
		}
		shares = append(shares, share)
	}
	return shares
}

// WorkerJob is what the process backend sends a worker subprocess
type WorkerJob struct {
	Worker int    `json:"worker" yaml:"worker"`
	Cfg    SimCfg `json:"cfg" yaml:"cfg"`
	Runs   []int  `json:"runs" yaml:"runs"`
}

// WorkerCommand builds the command starting a worker subprocess
type WorkerCommand func(ctx context.Context) (*exec.Cmd, error)

// selfWorkerCommand re-executes the running binary with the worker subcommand
func selfWorkerCommand(ctx context.Context) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, exe, "worker"), nil
}

// Orchestrator runs batches of one simulation description
type Orchestrator struct {
	cfg       *SimCfg
	log       logrus.FieldLogger
	trace     *TraceManager
	collector *Collector
	workerCmd WorkerCommand
}

// CreateOrchestrator is a constructor.  The logger, trace manager and collector may be nil.
func CreateOrchestrator(cfg *SimCfg, log logrus.FieldLogger, tm *TraceManager, collector *Collector) *Orchestrator {
	orch := new(Orchestrator)
	orch.cfg = cfg
	orch.log = orDiscard(log)
	orch.trace = tm
	orch.collector = collector
	orch.workerCmd = selfWorkerCommand
	return orch
}

// SetWorkerCommand replaces how the process backend starts its workers
func (orch *Orchestrator) SetWorkerCommand(cmd WorkerCommand) {
	orch.workerCmd = cmd
}

// RunBatch executes the configured number of runs and merges the summary rows,
// worker by worker in worker order
func (orch *Orchestrator) RunBatch(ctx context.Context) (*ResultSet, error) {
	if err := orch.cfg.Validate(); err != nil {
		return nil, err
	}
	shares := ShareRuns(orch.cfg.Runs, orch.cfg.Workers)
	logger := orch.log.WithFields(logrus.Fields{
		"runs":    orch.cfg.Runs,
		"workers": len(shares),
		"backend": orch.cfg.Backend,
	})
	logger.Info("batch started")
	start := time.Now()

	var results [][]ResultRow
	var err error
	switch orch.cfg.Backend {
	case CooperativeBackend:
		results, err = orch.runCooperative(ctx, shares)
	case PoolBackend:
		results, err = orch.runPool(ctx, shares)
	case ProcessBackend:
		results, err = orch.runProcess(ctx, shares)
	default:
		err = fmt.Errorf("backend %q: %w", orch.cfg.Backend, ErrBadParameter)
	}
	if err != nil {
		logger.Errorf("batch failed: %v", err)
		return nil, err
	}

	rs := MergeResults(results...)
	logger.WithField("elapsed", time.Since(start).String()).Info("batch complete")
	return rs, nil
}

// inProcessSimulation gives a simulation whose runs draw from streams created
// here in run order
func (orch *Orchestrator) inProcessSimulation() *Simulation {
	streams := runStreams(orch.cfg.Name, 0, orch.cfg.Runs)
	sim := CreateSimulation(orch.cfg, orch.log, orch.trace, orch.collector)
	sim.SetRandFactory(func(run int) Rand { return streams[run] })
	return sim
}

// runShare executes the runs of one share in order
func runShare(ctx context.Context, sim *Simulation, share []int) ([]ResultRow, error) {
	rows := make([]ResultRow, 0, len(share))
	for _, run := range share {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := sim.Run(run)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		rows = append(rows, rec.Summary())
	}
	return rows, nil
}

// runCooperative serves every share as a task of a TaskScheduler with one worker per share.
// Each time slice executes one run, then the task yields.
func (orch *Orchestrator) runCooperative(ctx context.Context, shares [][]int) ([][]ResultRow, error) {
	sim := orch.inProcessSimulation()
	results := make([][]ResultRow, len(shares))
	evtMgr := evtm.New()
	scheduler := CreateTaskScheduler(len(shares))

	var failed error
	for worker, share := range shares {
		worker, share := worker, share
		results[worker] = make([]ResultRow, 0, len(share))

		slice := func(task *Task, units int) error {
			for unit := 0; unit < units; unit++ {
				rows, err := runShare(ctx, sim, share[task.Served()+unit:task.Served()+unit+1])
				if err != nil {
					return fmt.Errorf("worker %d: %w", worker, err)
				}
				results[worker] = append(results[worker], rows...)
			}
			return nil
		}
		complete := func(evtMgr *evtm.EventManager, context any, data any) any {
			task := data.(*Task)
			orch.collector.WorkerDone()
			if task.Err != nil && failed == nil {
				failed = task.Err
			}
			orch.log.WithField("worker", context).Debugf("worker served %d runs", task.Served())
			return nil
		}

		orch.collector.WorkerStarted()
		scheduler.Schedule(evtMgr, "simulate", float64(len(share)), 1.0, worker, share, slice, complete)
	}
	evtMgr.Run(math.MaxFloat64)

	if failed != nil {
		return nil, failed
	}
	return results, nil
}

// runPool executes every share on its own goroutine
func (orch *Orchestrator) runPool(ctx context.Context, shares [][]int) ([][]ResultRow, error) {
	sim := orch.inProcessSimulation()
	results := make([][]ResultRow, len(shares))

	g, gctx := errgroup.WithContext(ctx)
	for worker, share := range shares {
		worker, share := worker, share
		g.Go(func() error {
			orch.collector.WorkerStarted()
			defer orch.collector.WorkerDone()

			rows, err := runShare(gctx, sim, share)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			results[worker] = rows
			orch.log.WithField("worker", worker).Debugf("worker served %d runs", len(rows))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runProcess executes every share in a worker subprocess
func (orch *Orchestrator) runProcess(ctx context.Context, shares [][]int) ([][]ResultRow, error) {
	results := make([][]ResultRow, len(shares))

	g, gctx := errgroup.WithContext(ctx)
	for worker, share := range shares {
		worker, share := worker, share
		g.Go(func() error {
			orch.collector.WorkerStarted()
			defer orch.collector.WorkerDone()

			rows, err := orch.execWorker(gctx, worker, share)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			results[worker] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// execWorker runs one worker subprocess to completion and collects its rows
func (orch *Orchestrator) execWorker(ctx context.Context, worker int, share []int) ([]ResultRow, error) {
	job := WorkerJob{Worker: worker, Cfg: *orch.cfg, Runs: share}
	input, err := yaml.Marshal(&job)
	if err != nil {
		return nil, err
	}

	cmd, err := orch.workerCmd(ctx)
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	orch.log.WithFields(logrus.Fields{"worker": worker, "runs": len(share)}).Debug("starting worker process")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	rs, err := ReadResultsIPC(&stdout)
	if err != nil {
		return nil, err
	}
	if rs.Len() != len(share) {
		return nil, fmt.Errorf("worker returned %d rows for %d runs", rs.Len(), len(share))
	}
	return rs.Rows, nil
}

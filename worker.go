package qnetsim

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServeWorker is the body of a worker subprocess of the process backend.  It reads a
// WorkerJob from r, executes its runs in order and writes their summary rows to w as an
// Arrow IPC stream.  Each run draws from the stream it would draw from in-process.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer, log logrus.FieldLogger) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	job := new(WorkerJob)
	if err := yaml.Unmarshal(data, job); err != nil {
		return fmt.Errorf("worker job: %w", err)
	}
	if err := job.Cfg.Validate(); err != nil {
		return err
	}
	for idx := 1; idx < len(job.Runs); idx++ {
		if job.Runs[idx] != job.Runs[idx-1]+1 {
			return fmt.Errorf("worker job runs %v are not consecutive: %w", job.Runs, ErrBadParameter)
		}
	}

	logger := orDiscard(log).WithField("worker", job.Worker)
	rows := []ResultRow{}
	if len(job.Runs) > 0 {
		first := job.Runs[0]
		streams := runStreams(job.Cfg.Name, first, len(job.Runs))
		sim := CreateSimulation(&job.Cfg, logger, nil, nil)
		sim.SetRandFactory(func(run int) Rand { return streams[run-first] })

		rows, err = runShare(ctx, sim, job.Runs)
		if err != nil {
			return err
		}
	}
	logger.Debugf("worker served %d runs", len(rows))

	rs := &ResultSet{Rows: rows}
	return rs.WriteIPC(w)
}

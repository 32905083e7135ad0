package main

// qnetsim runs batches of quantum network simulations.
//
//	qnetsim run -cfg exp.yaml -out results.csv [-metrics :9090] [-v]
//	qnetsim defaults -out exp.yaml
//
// The worker subcommand is started by the process backend and is not meant to be run by hand.

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/iti/qnetsim"
	"github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: qnetsim run -cfg <file> [-out <file>] [-metrics <addr>] [-v]")
	fmt.Fprintln(os.Stderr, "       qnetsim defaults -out <file>")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, log, os.Args[2:])
	case "defaults":
		err = defaultsCmd(os.Args[2:])
	case "worker":
		log.SetLevel(logrus.WarnLevel)
		err = qnetsim.ServeWorker(ctx, os.Stdin, os.Stdout, log)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func runCmd(ctx context.Context, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgFile := fs.String("cfg", "", "simulation description, .yaml or .json")
	outFile := fs.String("out", "", "result table, .csv or .arrow; printed as CSV when empty")
	metricsAddr := fs.String("metrics", "", "address serving Prometheus metrics, e.g. :9090")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *cfgFile == "" {
		return errors.New("run needs -cfg")
	}
	if _, err := qnetsim.CheckReadableFiles([]string{*cfgFile}); err != nil {
		return err
	}
	if *outFile != "" {
		if _, err := qnetsim.CheckOutputFiles([]string{*outFile}); err != nil {
			return err
		}
	}

	cfg, err := qnetsim.LoadSimCfg(*cfgFile)
	if err != nil {
		return err
	}

	collector, err := qnetsim.NewCollector(nil)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warnf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	tm := qnetsim.CreateTraceManager(cfg.Name, cfg.Trace)

	orch := qnetsim.CreateOrchestrator(cfg, log.WithField("experiment", cfg.Name), tm, collector)
	rs, err := orch.RunBatch(ctx)
	if err != nil {
		return err
	}

	if cfg.Trace && cfg.TraceFile != "" {
		if _, err := tm.WriteToFile(cfg.TraceFile); err != nil {
			return err
		}
	}

	for _, cs := range rs.Stats() {
		log.WithFields(logrus.Fields{"mean": cs.Mean, "std": cs.Std}).Info(cs.Name)
	}

	if *outFile == "" {
		return rs.WriteCSV(os.Stdout)
	}
	return rs.WriteToFile(*outFile)
}

func defaultsCmd(args []string) error {
	fs := flag.NewFlagSet("defaults", flag.ExitOnError)
	outFile := fs.String("out", "", "file receiving the default description, .yaml or .json")
	name := fs.String("name", "qnetsim", "experiment name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outFile == "" {
		return errors.New("defaults needs -out")
	}
	return qnetsim.DefaultSimCfg(*name).WriteToFile(*outFile)
}

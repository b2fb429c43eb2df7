// Command jam generates a random job assignment instance, anneals it and
// prints the roster, the profit breakdown and the progress trace.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"jobassign/internal/config"
	"jobassign/internal/demo"
	"jobassign/internal/model"
	"jobassign/internal/opt"
)

type report struct {
	Seed      int64               `json:"seed" yaml:"seed"`
	Schedule  opt.Schedule        `json:"schedule" yaml:"schedule"`
	Company   model.CompanyConfig `json:"company" yaml:"company"`
	Roster    []model.RosterRow   `json:"roster" yaml:"roster"`
	Breakdown model.Breakdown     `json:"breakdown" yaml:"breakdown"`
	Initial   float64             `json:"initialUtility" yaml:"initialUtility"`
	Trace     []model.TracePoint  `json:"trace" yaml:"trace"`
	Stats     model.RunStats      `json:"stats" yaml:"stats"`
	Cancelled bool                `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

func main() {
	var (
		numJobs    = flag.Int("jobs", 50, "number of random jobs")
		numWorkers = flag.Int("workers", 10, "number of random workers")
		iterations = flag.Int("iterations", opt.DefaultMaxIterations, "annealing iterations")
		seed       = flag.Int64("seed", 0, "seed for the instance and the run (0: clock)")
		schedule   = flag.String("schedule", string(opt.ScheduleRising), "acceptance schedule: rising | cooling")
		temp       = flag.Float64("t0", opt.DefaultInitialTemp, "initial temperature for the cooling schedule")
		profile    = flag.String("profile", "", "company profile YAML (default: stock constants)")
		format     = flag.String("format", "table", "output format: table | json | yaml")
		timeout    = flag.Duration("timeout", 0, "stop the run after this long and print the partial result; 0 disables")
		logLevel   = flag.String("log", "WARN", "log level")
	)
	flag.Parse()

	log, _ := config.NewLogger(os.Stderr, *logLevel, "text")

	company, err := config.LoadCompanyProfile(*profile)
	if err != nil {
		log.Error("load company profile", "err", err)
		os.Exit(2)
	}
	sched, err := opt.ParseSchedule(*schedule)
	if err != nil {
		log.Error("bad flag", "err", err)
		os.Exit(2)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(*seed))
	jobs := demo.Jobs(rng, company, *numJobs)
	workers := demo.Workers(rng, company, *numWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	opts := opt.DefaultOptions()
	opts.MaxIterations = *iterations
	opts.Seed = *seed
	opts.Schedule = sched
	opts.InitialTemp = *temp
	opts.OnCheckpoint = func(cp opt.Checkpoint) {
		log.Debug("checkpoint", "epoch", cp.Epoch, "iteration", cp.Iteration, "utility", cp.Utility)
	}

	res, err := opt.Optimize(ctx, company, jobs, workers, opts)
	cancelled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !cancelled {
		log.Error("optimize", "err", err)
		os.Exit(1)
	}
	log.Info("done", "iterations", res.Stats.Iterations, "utility", res.Utility, "duration", res.Duration)

	rep := report{
		Seed:      *seed,
		Schedule:  sched,
		Company:   company,
		Roster:    model.BuildRoster(workers, jobs, res.Assignment),
		Breakdown: res.Breakdown,
		Initial:   res.InitialUtility,
		Trace:     res.Trace,
		Stats:     res.Stats,
		Cancelled: cancelled,
	}
	if err := write(os.Stdout, *format, rep); err != nil {
		log.Error("write report", "err", err)
		os.Exit(1)
	}
}

func write(w io.Writer, format string, rep report) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		return writeTable(w, rep)
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeTable(w io.Writer, rep report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tSKILLS\tHOURLY PAY\tMINUTES\tJOBS")
	for _, row := range rep.Roster {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\t%s\n", row.Number, model.JoinInts(row.Skills), row.HourlyPay, row.Minutes, model.JoinInts(row.Jobs))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	b := rep.Breakdown
	fmt.Fprintf(w, "\nseed %d, schedule %s", rep.Seed, rep.Schedule)
	if rep.Cancelled {
		fmt.Fprint(w, " (stopped early)")
	}
	fmt.Fprintf(w, "\niterations %d: %d improved, %d accepted worse, %d rejected\n",
		rep.Stats.Iterations, rep.Stats.Improvements, rep.Stats.AcceptedWorse, rep.Stats.Rejected)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "revenue\t%.2f\t\n", b.Revenue)
	fmt.Fprintf(tw, "distance\t%.2f\t\n", b.Distance)
	fmt.Fprintf(tw, "employee pay\t%.2f\t\n", b.EmployeePay)
	fmt.Fprintf(tw, "skill mismatches\t%d\t\n", b.Mismatches)
	fmt.Fprintf(tw, "overworked workers\t%d\t\n", b.Overworked)
	fmt.Fprintf(tw, "initial profit\t%.2f\t\n", rep.Initial)
	fmt.Fprintf(tw, "profit\t%.2f\t\n", b.Utility)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nEPOCH  UTILITY")
	for _, pt := range rep.Trace {
		fmt.Fprintf(w, "%5d  %.2f\n", pt.Epoch, pt.Utility)
	}
	return nil
}

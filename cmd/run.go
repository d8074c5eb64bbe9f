package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/controller"
	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/adarshvs/Recon-MCP/internal/core/plan"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

var errOutputBehind = errors.New("event output fell behind, stream cut short")

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a plan file in-process and print its events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Aliases:  []string{"p"},
				Usage:    "Path to a YAML plan",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Query to record on the job, overrides the plan's query",
			},
			&cli.DurationFlag{
				Name:  "step-timeout",
				Usage: "Per-step timeout, overrides jobs.step_timeout",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print events as JSON lines",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if d := cmd.Duration("step-timeout"); d > 0 {
				cfg.Jobs.StepTimeout = d
			}
			controller.ConfigureLogging(cfg.Logging)

			loaded, err := plan.LoadFile(cmd.String("plan"))
			if err != nil {
				return err
			}
			var planner plan.Planner = plan.Static(loaded)
			p, err := planner.Plan(ctx, cmd.String("query"))
			if err != nil {
				return err
			}
			j, steps, err := plan.Build(p, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := controller.NewRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = rt.Close(closeCtx)
			}()

			if err := rt.Store.Create(ctx, j, steps); err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			sub := rt.Bus.Subscribe(j.ID)

			out := cmd.Root().Writer
			printer := printText
			if cmd.Bool("json") {
				printer = printJSON
			}

			var g errgroup.Group
			g.Go(func() error {
				defer rt.Bus.Unsubscribe(sub)
				_, err := rt.Engine.Run(ctx, j.ID)
				return err
			})
			g.Go(func() error {
				return printEvents(sub, out, printer)
			})
			if err := g.Wait(); err != nil {
				return err
			}

			d, err := rt.Store.Get(context.WithoutCancel(ctx), j.ID)
			if err != nil {
				return err
			}
			if d.Status != job.StatusDone {
				return cli.Exit(fmt.Sprintf("job %s ended %s", j.ID, d.Status), 1)
			}
			return nil
		},
	}
}

// printEvents prints until the subscription ends. An eviction means events
// were lost, so it is reported rather than passing for a clean end.
func printEvents(sub *event.Subscription, w io.Writer, printer func(io.Writer, event.Event) error) error {
	for e := range sub.C() {
		if err := printer(w, e); err != nil {
			return err
		}
	}
	if sub.Evicted() {
		return errOutputBehind
	}
	return nil
}

func printJSON(w io.Writer, e event.Event) error {
	return json.NewEncoder(w).Encode(e)
}

func printText(w io.Writer, e event.Event) error {
	var err error
	switch e.Type {
	case event.TypeStepStart:
		_, err = fmt.Fprintf(w, "==> [%d] %s\n", e.Order, e.Step)
	case event.TypeStream:
		_, err = io.WriteString(w, e.Data)
	case event.TypeStepEnd:
		exit := "-"
		if e.Exit != nil {
			exit = fmt.Sprint(*e.Exit)
		}
		_, err = fmt.Fprintf(w, "<== [%d] %s: %s (exit %s)\n", e.Order, e.Step, e.Status, exit)
	case event.TypeJobDone:
		if e.Error != "" {
			_, err = fmt.Fprintf(w, "job %s: %s (%s)\n", e.JobID, e.Status, e.Error)
		} else {
			_, err = fmt.Fprintf(w, "job %s: %s\n", e.JobID, e.Status)
		}
	}
	return err
}

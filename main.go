package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tidwall/gjson"
	"github.com/tluyben/crmflow/backend"
	"github.com/tluyben/crmflow/catalog"
	"github.com/tluyben/crmflow/config"
	"github.com/tluyben/crmflow/flow"
	"github.com/tluyben/crmflow/flows"
	"github.com/tluyben/crmflow/metrics"
	"github.com/tluyben/crmflow/server"
	"github.com/tluyben/crmflow/transcripts"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	cfg     *config.Config
	logger  *zap.Logger
	specs   *catalog.Catalog
	timeout time.Duration
)

func main() {
	app := &cli.App{
		Name:  "crmflow",
		Usage: "Run the CRM's AI flows: call summaries, script enhancement and multi-channel messages",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Env files to load before reading the environment",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:  "flows",
				Usage: "Directory containing extra flow definitions (defaults to FLOWS_DIR)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Abandon a flow execution after this long",
				Value: 2 * time.Minute,
			},
		},
		Before: setup,
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List the available flows",
				Action: listFlows,
			},
			{
				Name:      "describe",
				Usage:     "Show a flow's input and output schemas",
				ArgsUsage: "<flow>",
				Action:    describeFlow,
			},
			{
				Name:      "run",
				Usage:     "Run a flow with a JSON input object",
				ArgsUsage: "<flow> <input-json>",
				Action:    runFlow,
			},
			{
				Name:      "index",
				Usage:     "Index or reindex the transcripts under a directory",
				ArgsUsage: "[dir]",
				Action:    indexTranscripts,
			},
			{
				Name:      "search",
				Usage:     "Search indexed transcripts and run a flow on the best match",
				ArgsUsage: "<query> <flow>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "field",
						Usage: "Input field that receives the matched transcript",
						Value: "transcript",
					},
					&cli.StringFlag{
						Name:  "input",
						Usage: "JSON object with the flow's other input fields",
					},
				},
				Action: searchAndRunFlow,
			},
			{
				Name:   "serve",
				Usage:  "Serve the flows over HTTP",
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	var err error
	cfg, err = config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return err
	}
	logger, err = cfg.Logger()
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	timeout = c.Duration("timeout")

	specs, err = flows.Catalog()
	if err != nil {
		return err
	}

	dir := cfg.FlowsDir
	if c.IsSet("flows") {
		dir = c.String("flows")
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		if c.IsSet("flows") {
			return fmt.Errorf("flows directory %s: %w", dir, statErr)
		}
		return nil
	}
	n, err := specs.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("error loading flows: %w", err)
	}
	logger.Debug("loaded flow definitions", zap.String("dir", dir), zap.Int("count", n))
	return nil
}

func newExecutor(observers ...flow.Observer) (*flow.Executor, error) {
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}
	b := backend.NewOpenRouter(cfg.Backend.OpenRouter(), logger)
	opts := []flow.Option{flow.WithLogger(logger)}
	for _, o := range observers {
		opts = append(opts, flow.WithObserver(o))
	}
	return flow.NewExecutor(b, opts...), nil
}

func lookup(name string) (*flow.Spec, error) {
	spec, ok := specs.Get(name)
	if !ok {
		return nil, fmt.Errorf("flow '%s' not found", name)
	}
	return spec, nil
}

func listFlows(c *cli.Context) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, s := range specs.Specs() {
		fmt.Fprintf(w, "%s\t%s\n", s.Name(), s.Description())
	}
	return w.Flush()
}

func describeFlow(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("please provide a flow name")
	}
	spec, err := lookup(c.Args().Get(0))
	if err != nil {
		return err
	}
	return printJSON(spec.Describe())
}

func runFlow(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("please provide a flow name and an input for the flow")
	}
	spec, err := lookup(c.Args().Get(0))
	if err != nil {
		return err
	}
	input, err := parseInput(c.Args().Get(1))
	if err != nil {
		return err
	}
	return execute(c.Context, spec, input)
}

func indexTranscripts(c *cli.Context) error {
	dir := "."
	if c.NArg() > 0 {
		dir = c.Args().Get(0)
	}
	index, err := transcripts.Rebuild(cfg.IndexPath, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	n, err := index.IndexDir(dir)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d transcripts from %s\n", n, dir)
	return nil
}

func searchAndRunFlow(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("please provide a search query and a flow name")
	}
	query := c.Args().Get(0)
	spec, err := lookup(c.Args().Get(1))
	if err != nil {
		return err
	}

	input := map[string]any{}
	if raw := c.String("input"); raw != "" {
		if input, err = parseInput(raw); err != nil {
			return err
		}
	}

	index, err := transcripts.Open(cfg.IndexPath, logger)
	if err != nil {
		return err
	}
	hits, err := index.Search(query, 1)
	index.Close()
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("no transcripts match %q", query)
	}
	logger.Info("using transcript", zap.String("id", hits[0].ID), zap.Float64("score", hits[0].Score))

	input[c.String("field")] = hits[0].Content
	return execute(c.Context, spec, input)
}

func serve(c *cli.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	executor, err := newExecutor(metrics.NewCollector(reg))
	if err != nil {
		return err
	}

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.Setup(server.Options{
			Catalog:     specs,
			Executor:    executor,
			Gatherer:    reg,
			CORSOrigins: cfg.CORSOrigins,
			Logger:      logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func execute(ctx context.Context, spec *flow.Spec, input map[string]any) error {
	executor, err := newExecutor()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := executor.Execute(ctx, spec, input)
	if err != nil {
		return err
	}
	return printJSON(output)
}

func parseInput(raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	obj, ok := gjson.Parse(raw).Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("input must be a JSON object")
	}
	return obj, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatError(err error) string {
	var validation *flow.ValidationError
	if errors.As(err, &validation) {
		msg := fmt.Sprintf("%s validation failed for flow %s:", validation.Stage, validation.Flow)
		for _, v := range validation.Violations {
			msg += fmt.Sprintf("\n  %s: %s", v.Field, v.Reason)
		}
		return msg
	}
	if backend.IsRetryable(err) {
		return fmt.Sprintf("%v (transient, safe to retry)", err)
	}
	return err.Error()
}

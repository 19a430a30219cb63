package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/audit"
	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/config"
	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/logger"
	"github.com/teranos/dcheck/modules"
	"github.com/teranos/dcheck/plan"
	"github.com/teranos/dcheck/progress"
	"github.com/teranos/dcheck/runner"
	"github.com/teranos/dcheck/source"
	"github.com/teranos/dcheck/version"
)

// RunCmd executes a validation plan
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a validation plan",
	Long: `Validate every table in the plan, in order.

Each table's result is written to <output>/<run-id>/tables/ as soon as it
completes and recorded in <output>/<run-id>/ledger.jsonl. A run with the same
id and --resume skips tables already recorded, after checking that their
artifacts still match the ledger.

Without --resume an existing ledger for the run id is retired (a supersede
marker is appended, nothing is deleted) and every table runs again.

Sensitive evidence is redacted from every artifact unless the plan sets
allow_pii_output or --allow-pii-output is given.`,
	Example: `  dcheck run --spec plan.yaml --run-id nightly
  dcheck run --spec plan.yaml --run-id nightly --resume
  dcheck run --spec plan.yaml --run-id auto --fail-on fail --limit 5
  dcheck run --spec s3::https://s3.amazonaws.com/bucket/plan.yaml --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runFlags
		opts.failOnSet = cmd.Flags().Changed("fail-on")
		opts.verbosity, _ = cmd.Flags().GetCount("verbose")
		opts.out = cmd.OutOrStdout()
		return executeRun(cmd.Context(), opts)
	},
}

// runOptions holds the run command's flags
type runOptions struct {
	spec      string
	output    string
	runID     string
	dsn       string
	resume    bool
	dryRun    bool
	allowPII  bool
	jsonOut   bool
	limit     int
	failOn    []string
	failOnSet bool
	timeout   time.Duration
	verbosity int
	out       io.Writer
}

var runFlags runOptions

func init() {
	f := RunCmd.Flags()
	f.StringVarP(&runFlags.spec, "spec", "s", "", "Plan file or go-getter source (YAML or TOML)")
	f.StringVarP(&runFlags.output, "output", "o", "", "Output root, overrides run.output_path (dbfs:/ is mapped to /dbfs)")
	f.StringVar(&runFlags.runID, "run-id", "", `Run id, overrides run.id ("auto" generates one)`)
	f.StringVar(&runFlags.dsn, "dsn", "", "SQLite database the built-in modules read (default from config)")
	f.BoolVar(&runFlags.resume, "resume", false, "Skip tables the ledger already records")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "Load and print the plan without running it")
	f.BoolVar(&runFlags.allowPII, "allow-pii-output", false, "Write sensitive evidence unredacted")
	f.BoolVar(&runFlags.jsonOut, "json", false, "Emit progress as JSON lines on stdout")
	f.IntVar(&runFlags.limit, "limit", 0, "Only run the first N tables (0 = all)")
	f.StringSliceVar(&runFlags.failOn, "fail-on", nil, "Severities that fail the run, overrides run.fail_on (e.g. error,fail)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Per-module timeout, overrides run.module_timeout")
	_ = RunCmd.MarkFlagRequired("spec")
}

func executeRun(ctx context.Context, opts runOptions) error {
	if opts.out == nil {
		opts.out = os.Stdout
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.ComponentLogger("cli")

	var src *source.SQLSource
	if !opts.dryRun {
		dsn := opts.dsn
		if dsn == "" {
			dsn = cfg.Source.DSN
		}
		src, err = source.OpenSQLite(dsn, logger.ComponentLogger("source"))
		if err != nil {
			return errors.Wrapf(err, "failed to open table source %s", dsn)
		}
		defer src.Close()
		src.Trace = logger.ShouldLogTrace(opts.verbosity)
	}

	registry, err := newRegistry(src)
	if err != nil {
		return err
	}

	runID := opts.runID
	if runID == "auto" {
		runID = "run-" + uuid.NewString()
	}

	loadOpts := plan.LoadOptions{
		RunID:                runID,
		OutputRoot:           opts.output,
		AllowRaw:             opts.allowPII,
		ModuleTimeout:        opts.timeout,
		Limit:                opts.limit,
		DefaultOutputRoot:    cfg.Runner.OutputRoot,
		DefaultModuleTimeout: cfg.ModuleTimeout(),
		Catalog:              registry,
		RunnerVersion:        version.Get().Version,
	}
	if opts.failOnSet {
		loadOpts.FailOn = opts.failOn
		if loadOpts.FailOn == nil {
			loadOpts.FailOn = []string{}
		}
	}

	spec, err := loadPlan(ctx, opts.spec, loadOpts)
	if err != nil {
		return err
	}

	if opts.dryRun {
		printPlan(opts.out, spec)
		return nil
	}

	log.Infow("Starting run",
		logger.FieldRunID, spec.RunID,
		logger.FieldTotalCount, spec.TaskCount(),
		"output", spec.RunDir(),
		"resume", opts.resume,
		"version", version.Get().Short())

	var emitter progress.Emitter = progress.NewCLIEmitter(opts.verbosity)
	if opts.jsonOut {
		emitter = progress.NewJSONEmitter(opts.out)
	}

	meta := audit.Collect(opts.spec)
	r := runner.New(spec, registry, runner.Options{
		Resume:         opts.resume,
		TasksPerMinute: cfg.Runner.TasksPerMinute,
		Emitter:        emitter,
		Audit:          &meta,
	})
	res, err := r.Run(ctx)

	// the emitter has already shown the verdict and any fatal error on the
	// terminal; integrity violations still get their banner
	code := runner.ExitCode(res, err)
	if err != nil {
		return &exitError{code: code, err: err, reported: !opts.jsonOut && !errors.IsIntegrityViolation(err)}
	}
	if code != runner.ExitOK {
		return &exitError{
			code:     code,
			err:      errors.Newf("run %s failed: %d table(s) reached fail-on severities", spec.RunID, res.Summary.Failed),
			reported: true,
		}
	}
	return nil
}

func newRegistry(src source.TableSource) (*check.Registry, error) {
	registry, err := modules.NewRegistry(src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build module registry")
	}
	return registry, nil
}

// loadPlan fetches the plan if it is remote and loads it. Any failure is a
// spec error.
func loadPlan(ctx context.Context, src string, opts plan.LoadOptions) (*plan.RunSpec, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.NewSpecError("--spec is required")
	}
	dir, err := os.MkdirTemp("", "dcheck-plan-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create plan download directory")
	}
	defer os.RemoveAll(dir)

	path, err := plan.Fetch(ctx, src, dir, logger.ComponentLogger("plan"))
	if err != nil {
		return nil, err
	}
	opts.Source = src
	return plan.LoadFile(path, opts)
}

// printPlan renders a loaded plan for --dry-run
func printPlan(w io.Writer, spec *plan.RunSpec) {
	fmt.Fprintln(w, pterm.DefaultHeader.WithFullWidth().Sprintf("Plan %s", spec.RunID))
	fmt.Fprintln(w, pterm.Warning.Sprint("DRY RUN: no module is invoked and nothing is written"))

	fmt.Fprintf(w, "Output:            %s\n", spec.RunDir())
	fmt.Fprintf(w, "Fail on:           %s\n", strings.Join(spec.FailOn().Strings(), ", "))
	fmt.Fprintf(w, "Continue on error: %t\n", spec.ContinueOnError)
	fmt.Fprintf(w, "Raw PII output:    %t\n", spec.AllowRaw)
	fmt.Fprintf(w, "Module timeout:    %s\n", spec.ModuleTimeout)
	if spec.Requires != "" {
		fmt.Fprintf(w, "Requires:          %s\n", spec.Requires)
	}
	fmt.Fprintln(w)

	data := pterm.TableData{{"#", "Table", "Modules", "Configured"}}
	for i, task := range spec.Tasks() {
		var configured []string
		for _, m := range task.Modules {
			if len(task.ModuleConfig(m)) > 0 {
				configured = append(configured, m)
			}
		}
		data = append(data, []string{
			fmt.Sprintf("%d", i+1),
			task.TableID,
			strings.Join(task.Modules, ", "),
			strings.Join(configured, ", "),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		fmt.Fprintln(w, pterm.Error.Sprint(err))
		return
	}
	fmt.Fprintln(w, table)
}

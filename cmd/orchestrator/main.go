package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/iepathos/prodigy/internal/checkpoint"
	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/dlq"
	"github.com/iepathos/prodigy/internal/logging"
	"github.com/iepathos/prodigy/internal/orchestrator"
	"github.com/iepathos/prodigy/internal/retry"
	"github.com/iepathos/prodigy/internal/storage"
	"github.com/iepathos/prodigy/internal/telemetry"
	"github.com/iepathos/prodigy/internal/validate"
	"github.com/iepathos/prodigy/internal/variables"
	"github.com/iepathos/prodigy/internal/vcs/git"
	"github.com/iepathos/prodigy/internal/workflow"
	"github.com/iepathos/prodigy/internal/worktreepool"

	"github.com/spf13/afero"
)

// Exit codes per the error-handling design: 0 success, 1 partial
// (some items failed but the job completed), 2 fatal (setup/reduce
// error or job-level Stop), 3 user error (bad flags, malformed
// workflow file).
const (
	exitSuccess = 0
	exitPartial = 1
	exitFatal   = 2
	exitUser    = 3
)

var (
	workflowPath      string
	dataDir           string
	repoDir           string
	parallelWorktrees int
	debugLog          bool
	schedule          string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a MapReduce workflow against a repository",
	RunE:  runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&workflowPath, "workflow", "", "path to a workflow definition (.yaml/.yml/.json)")
	runCmd.Flags().StringVar(&dataDir, "data-dir", ".prodigy", "directory for checkpoints, DLQ entries, and events")
	runCmd.Flags().StringVar(&repoDir, "repo", ".", "repository root to run agent worktrees against")
	runCmd.Flags().IntVar(&parallelWorktrees, "parallel", 4, "maximum number of agents running concurrently")
	runCmd.Flags().BoolVar(&debugLog, "debug", false, "enable debug logging")
	runCmd.Flags().StringVar(&schedule, "schedule", "", "cron expression to re-run the workflow on a recurring schedule instead of once")
	_ = runCmd.MarkFlagRequired("workflow")
}

var rootCmd = &cobra.Command{
	Use:   "prodigy",
	Short: "Run agentic code-modification workflows over a MapReduce job model",
}

func main() {
	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitUser)
	}
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	log := logging.New(debugLog)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if workflowPath == "" {
		fmt.Fprintln(os.Stderr, "--workflow is required")
		os.Exit(exitUser)
	}

	if schedule != "" {
		return runScheduled(ctx, log)
	}

	os.Exit(runOnce(ctx, log))
	return nil
}

// runScheduled re-runs the workflow on the given cron schedule until the
// command's context is cancelled, logging each run's exit code rather than
// exiting the process after the first one.
func runScheduled(ctx context.Context, log *logging.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		code := runOnce(ctx, log)
		log.With("exit_code", code).Info("scheduled run finished")
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --schedule %q: %v\n", schedule, err)
		os.Exit(exitUser)
	}

	log.With("schedule", schedule).Info("starting scheduled runs")
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

// runOnce drives a single workflow run end to end and returns the process
// exit code for it, without calling os.Exit — so runScheduled can run it
// repeatedly in the same process.
func runOnce(ctx context.Context, log *logging.Logger) int {
	def, err := loadDefinition(workflowPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading workflow: %v\n", err)
		return exitUser
	}

	exec := command.NewShellExecutor()

	items, err := orchestrator.ResolveMapItems(ctx, def, exec, repoDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving work items: %v\n", err)
		return exitFatal
	}

	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "workflow declares no work items")
		return exitUser
	}

	if result := validateItems(items); !result.OK() {
		fmt.Fprintf(os.Stderr, "%d validation errors:\n", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Fprintf(os.Stderr, "  %v\n", issue)
		}
		return exitUser
	}

	jobID := def.ID
	if jobID == "" {
		jobID = strings.TrimSuffix(filepath.Base(workflowPath), filepath.Ext(workflowPath))
	}

	wf, err := orchestrator.FromDefinition(def, jobID, items)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compiling workflow: %v\n", err)
		return exitUser
	}

	fs := afero.NewOsFs()
	backend := storage.NewLocalFS(fs, dataDir)
	checkpoints := checkpoint.NewManager(backend, checkpoint.CompressionGzip, checkpoint.Policy{
		IntervalItems:  10,
		MaxCheckpoints: 20,
	})
	dlqQueue := dlq.NewQueue(backend)

	tracer := telemetry.New()

	// The workflow's own map.max_parallel, when declared, overrides the
	// --parallel flag rather than being silently shadowed by it.
	effectiveParallel := parallelWorktrees
	if wf.Map.MaxParallel > 0 {
		effectiveParallel = wf.Map.MaxParallel
	}

	gitManager := git.NewManager(repoDir, filepath.Join(dataDir, "worktrees"))
	pool := worktreepool.New(gitManager, effectiveParallel, worktreepool.Config{
		Strategy:   worktreepool.OnDemand,
		KeepFailed: true,
	}).WithTracer(tracer)

	eventsPublisher := orchestrator.NewStoragePublisher(backend.Put)
	bus := orchestrator.NewBus(jobID, eventsPublisher)

	cfg := orchestrator.DefaultConfig()
	cfg.JobID = jobID
	cfg.ParallelWorktrees = effectiveParallel

	o := orchestrator.New(
		cfg,
		pool,
		exec,
		retry.NewExecutor(),
		variables.NewInterpolator(variables.Lenient),
		variables.New(),
		bus,
		checkpoints,
		checkpoint.Policy{IntervalItems: cfg.CheckpointIntervalItems, IntervalDuration: cfg.CheckpointIntervalTime},
		dlqQueue,
	).WithTracer(tracer)

	start := time.Now()
	run, err := o.Run(ctx, wf)
	log.With("phase", string(run.Phase)).With("duration", time.Since(start)).Info("run finished")
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return exitFatal
	}

	if run.Phase == orchestrator.PhasePaused {
		return exitFatal
	}

	if run.Collections != nil && len(run.Collections.Failed) > 0 {
		return exitPartial
	}

	return exitSuccess
}

func loadDefinition(path string) (*workflow.Definition, error) {
	loader := workflow.NewLoader(filepath.Dir(path))
	file, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return file.Definition, nil
}

func validateItems(items []orchestrator.WorkItem) validate.Result {
	raw := make([]interface{}, 0, len(items))
	for _, item := range items {
		data := map[string]interface{}{"id": item.ID}
		for k, v := range item.Data {
			data[k] = v
		}
		raw = append(raw, data)
	}
	schema := &validate.Schema{
		Fields: map[string]validate.FieldSpec{
			"id": {Type: validate.TypeString, Required: true},
		},
		IDField: "id",
	}
	return validate.Validate(raw, schema)
}

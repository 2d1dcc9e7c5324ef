package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/iepathos/prodigy/internal/checkpoint"
	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/dlq"
	"github.com/iepathos/prodigy/internal/retry"
	"github.com/iepathos/prodigy/internal/storage"
	"github.com/iepathos/prodigy/internal/variables"
	"github.com/iepathos/prodigy/internal/vcs"
	"github.com/iepathos/prodigy/internal/worktreepool"
)

// fakeWorktreeService is an in-memory vcs.WorktreeService for
// orchestrator tests, mirroring worktreepool's own fake.
type fakeWorktreeService struct {
	mu       sync.Mutex
	sessions map[string]vcs.WorktreeSession
}

func newFakeWorktreeService() *fakeWorktreeService {
	return &fakeWorktreeService{sessions: make(map[string]vcs.WorktreeSession)}
}

func (f *fakeWorktreeService) Create(_ context.Context, name string) (vcs.WorktreeSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := vcs.WorktreeSession{Name: name, Branch: "agent/" + name, Path: "/tmp/" + name}
	f.sessions[name] = s
	return s, nil
}

func (f *fakeWorktreeService) List(context.Context) ([]vcs.WorktreeSession, error) {
	return nil, nil
}

func (f *fakeWorktreeService) Remove(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
	return nil
}

func (f *fakeWorktreeService) Merge(context.Context, string) error { return nil }

func (f *fakeWorktreeService) DiffSummary(context.Context, string, string, string) (*vcs.DiffSummary, error) {
	return nil, vcs.ErrDiffUnsupported
}

// scriptedExecutor returns a canned Result/error for each step id,
// keyed by the rendered command string's suffix (the step's Cmd, since
// our test steps never interpolate anything).
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string]command.Result
	errs    map[string]error
	calls   int
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{results: map[string]command.Result{}, errs: map[string]error{}}
}

func (s *scriptedExecutor) Execute(_ context.Context, req command.Request) (command.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cmd := req.Args[len(req.Args)-1]
	if err, ok := s.errs[cmd]; ok {
		return command.Result{}, err
	}
	if res, ok := s.results[cmd]; ok {
		return res, nil
	}
	return command.Result{ExitCode: 0, Success: true}, nil
}

func testOrchestrator(t *testing.T, exec command.Executor, parallel int) (*Orchestrator, *fakeWorktreeService, afero.Fs) {
	t.Helper()
	svc := newFakeWorktreeService()
	pool := worktreepool.New(svc, parallel, worktreepool.Config{Strategy: worktreepool.OnDemand})

	fs := afero.NewMemMapFs()
	backend := storage.NewLocalFS(fs, "/data")
	checkpoints := checkpoint.NewManager(backend, checkpoint.CompressionNone, checkpoint.Policy{})
	dlqQueue := dlq.NewQueue(backend)

	cfg := DefaultConfig()
	cfg.JobID = "job-1"
	cfg.ParallelWorktrees = parallel

	o := New(
		cfg,
		pool,
		exec,
		retry.NewExecutor(),
		variables.NewInterpolator(variables.Lenient),
		variables.New(),
		NewBus(cfg.JobID),
		checkpoints,
		checkpoint.Policy{IntervalItems: 1},
		dlqQueue,
	)
	return o, svc, fs
}

func TestRun_AllItemsSucceed(t *testing.T) {
	exec := newScriptedExecutor()
	o, _, _ := testOrchestrator(t, exec, 2)

	items := []WorkItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	wf := Workflow{
		Map: MapSpec{
			Items:         items,
			AgentWorkflow: []Step{{ID: "do", Kind: StepShell, Cmd: "echo hi"}},
			RetryPolicy:   retry.Policy{Attempts: 1},
			OnFailure:     OnFailurePolicy{Action: OnFailureContinueJob},
		},
	}

	run, err := o.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, run.Phase)
	require.Len(t, run.Collections.Completed, 3)
	require.Empty(t, run.Collections.Failed)
}

func TestRun_TerminalFailureGoesToDLQ(t *testing.T) {
	exec := newScriptedExecutor()
	exec.errs["fail me"] = fmt.Errorf("boom")
	o, _, fs := testOrchestrator(t, exec, 1)

	items := []WorkItem{{ID: "only"}}
	wf := Workflow{
		Map: MapSpec{
			Items:         items,
			AgentWorkflow: []Step{{ID: "do", Kind: StepShell, Cmd: "fail me"}},
			RetryPolicy:   retry.Policy{Attempts: 1},
			OnFailure:     OnFailurePolicy{Action: OnFailureContinueJob},
		},
	}

	run, err := o.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, run.Phase)
	require.Len(t, run.Collections.Failed, 1)

	entries, err := dlq.NewQueue(storage.NewLocalFS(fs, "/data")).List(context.Background(), "job-1", dlq.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "only", entries[0].ItemID)
}

func TestRun_TransientFailureRetriesThenSucceeds(t *testing.T) {
	exec := newScriptedExecutor()
	attempt := 0
	o, _, _ := testOrchestrator(t, &countingExecutor{inner: exec, onCall: func() { attempt++ }, failUntil: 1}, 1)

	items := []WorkItem{{ID: "flaky"}}
	wf := Workflow{
		Map: MapSpec{
			Items:         items,
			AgentWorkflow: []Step{{ID: "do", Kind: StepShell, Cmd: "echo hi"}},
			RetryPolicy:   retry.Policy{Attempts: 3},
			OnFailure:     OnFailurePolicy{Action: OnFailureContinueJob},
		},
	}

	run, err := o.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, run.Phase)
	require.Len(t, run.Collections.Completed, 1)
	require.Empty(t, run.Collections.Failed)
}

// countingExecutor fails the first failUntil calls with a timeout error
// (classified TransientFailure) then delegates to inner.
type countingExecutor struct {
	inner     command.Executor
	onCall    func()
	failUntil int
	mu        sync.Mutex
	calls     int
}

func (c *countingExecutor) Execute(ctx context.Context, req command.Request) (command.Result, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.onCall != nil {
		c.onCall()
	}
	if n <= c.failUntil {
		return command.Result{}, &command.TimedOutError{Timeout: time.Second}
	}
	return c.inner.Execute(ctx, req)
}

func TestRun_ReducePhaseSeesMapSummary(t *testing.T) {
	exec := newScriptedExecutor()
	o, _, _ := testOrchestrator(t, exec, 2)

	items := []WorkItem{{ID: "a"}, {ID: "b"}}
	wf := Workflow{
		Map: MapSpec{
			Items:         items,
			AgentWorkflow: []Step{{ID: "do", Kind: StepShell, Cmd: "echo hi"}},
			RetryPolicy:   retry.Policy{Attempts: 1},
			OnFailure:     OnFailurePolicy{Action: OnFailureContinueJob},
		},
		Reduce: nil,
	}

	run, err := o.Run(context.Background(), wf)
	require.NoError(t, err)
	mapVars, ok := run.ReduceVars["map"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, 2, mapVars["successful"])
	require.Equal(t, 0, mapVars["failed"])
}

func TestShutdown_RequeuesInProgressItemsWithOriginalPayload(t *testing.T) {
	o, _, _ := testOrchestrator(t, newScriptedExecutor(), 1)

	collections := newCollections(nil)
	collections.InProgress["a"] = InProgressEntry{
		AgentID: "agent-1",
		Item:    WorkItem{ID: "a", Data: map[string]interface{}{"path": "a.go"}, RetryCount: 1},
	}

	run, err := o.shutdown(context.Background(), collections)
	require.NoError(t, err)
	require.Equal(t, PhasePaused, run.Phase)
	require.Empty(t, run.Collections.InProgress)
	require.Len(t, run.Collections.Pending, 1)
	require.Equal(t, "a.go", run.Collections.Pending[0].Data["path"])
	require.Equal(t, 1, run.Collections.Pending[0].RetryCount)
}

func TestRun_FailJobStopsEarlyOnThreshold(t *testing.T) {
	exec := newScriptedExecutor()
	exec.errs["fail me"] = fmt.Errorf("boom")
	o, _, _ := testOrchestrator(t, exec, 1)
	o.cfg.OnFailure = OnFailureFailJob
	o.cfg.ErrorThreshold = 1

	items := []WorkItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	wf := Workflow{
		Map: MapSpec{
			Items:         items,
			AgentWorkflow: []Step{{ID: "do", Kind: StepShell, Cmd: "fail me"}},
			RetryPolicy:   retry.Policy{Attempts: 1},
			OnFailure:     OnFailurePolicy{Action: OnFailureFailJob},
		},
	}

	run, err := o.Run(context.Background(), wf)
	require.NoError(t, err)
	require.Equal(t, PhasePaused, run.Phase)
	require.NotEqual(t, 3, len(run.Collections.Failed)+len(run.Collections.Completed))
}

package orchestrator

import (
	"time"

	"github.com/iepathos/prodigy/internal/retry"
)

// TimeoutAction names what happens to an item whose per-agent timeout
// expires and whose grace period also expires.
type TimeoutAction string

const (
	TimeoutDLQ               TimeoutAction = "dlq"
	TimeoutSkip              TimeoutAction = "skip"
	TimeoutFail              TimeoutAction = "fail"
	TimeoutGracefulTerminate TimeoutAction = "graceful_terminate"
)

// Config bounds one orchestrator run.
type Config struct {
	JobID string

	ParallelWorktrees int // W
	ErrorThreshold    int
	OnFailure         OnFailureAction
	KeepFailed        bool
	Breaker           retry.BreakerConfig

	CommandTimeouts CommandTimeouts
	AgentTimeout    time.Duration
	GlobalTimeout   time.Duration
	GracePeriod     time.Duration
	TimeoutAction   TimeoutAction

	CheckpointIntervalItems int
	CheckpointIntervalTime  time.Duration
}

// CommandTimeouts gives the per-command-type defaults named in spec
// §4.K's agent task algorithm.
type CommandTimeouts struct {
	Shell    time.Duration
	Claude   time.Duration
	GoalSeek time.Duration
}

// DefaultCommandTimeouts matches spec §4.K's stated defaults: shell
// 60s, LLM (Claude) 300s, goal-seek 600s.
func DefaultCommandTimeouts() CommandTimeouts {
	return CommandTimeouts{
		Shell:    60 * time.Second,
		Claude:   300 * time.Second,
		GoalSeek: 600 * time.Second,
	}
}

// DefaultConfig returns a Config with the spec's stated defaults
// filled in; callers still must set JobID and ParallelWorktrees.
func DefaultConfig() Config {
	return Config{
		OnFailure:               OnFailureContinueJob,
		CommandTimeouts:         DefaultCommandTimeouts(),
		GracePeriod:             10 * time.Second,
		TimeoutAction:           TimeoutDLQ,
		CheckpointIntervalItems: 10,
		CheckpointIntervalTime:  30 * time.Second,
		Breaker:                 DefaultBreakerConfig(),
	}
}

// DefaultBreakerConfig opens a command's circuit after 5 consecutive
// failures, holds Open for 30s, then allows a single HalfOpen probe
// per spec §4.E's "Circuit breaker (per command id)" default posture.
func DefaultBreakerConfig() retry.BreakerConfig {
	return retry.BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

func (c CommandTimeouts) forKind(kind StepKind) time.Duration {
	switch kind {
	case StepShell:
		return c.Shell
	case StepClaude:
		return c.Claude
	case StepGoalSeek:
		return c.GoalSeek
	default:
		return c.Shell
	}
}

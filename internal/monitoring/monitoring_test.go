package monitoring_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/context-pipeline/internal/messages"
	"github.com/compresr/context-pipeline/internal/monitoring"
	"github.com/compresr/context-pipeline/internal/pipeline"
)

var _ pipeline.Recorder = (*monitoring.MetricsCollector)(nil)

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, monitoring.OutcomeCompleted, monitoring.OutcomeOf(false, nil))
	assert.Equal(t, monitoring.OutcomeAborted, monitoring.OutcomeOf(true, nil))
	assert.Equal(t, monitoring.OutcomeFailed, monitoring.OutcomeOf(true, errors.New("x")))
}

func TestMetricsCollector(t *testing.T) {
	mc := monitoring.NewMetricsCollector()

	mc.RecordRequest(true, time.Millisecond)
	mc.RecordRequest(false, time.Millisecond)
	mc.RecordRun(false, nil, 2*time.Millisecond)
	mc.RecordRun(true, nil, 4*time.Millisecond)
	mc.RecordRun(false, errors.New("boom"), 6*time.Millisecond)
	mc.RecordStage("history_truncate", 10*time.Microsecond, nil)
	mc.RecordStage("history_truncate", 30*time.Microsecond, nil)
	mc.RecordStage("message_content", 5*time.Microsecond, errors.New("bad"))

	s := mc.Stats()
	assert.Equal(t, int64(2), s.Requests)
	assert.Equal(t, int64(1), s.Successes)
	assert.Equal(t, int64(3), s.Runs)
	assert.Equal(t, int64(1), s.Aborted)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(4000), s.AvgRunTimeUs)

	require.Contains(t, s.Stages, "history_truncate")
	assert.Equal(t, monitoring.StageStats{Calls: 2, AvgLatencyUs: 20}, s.Stages["history_truncate"])
	assert.Equal(t, monitoring.StageStats{Calls: 1, Errors: 1, AvgLatencyUs: 5}, s.Stages["message_content"])
}

func TestMetricsCollector_FedByEngine(t *testing.T) {
	mc := monitoring.NewMetricsCollector()
	nop := zerolog.Nop()
	engine := pipeline.NewEngine(pipeline.EngineOptions{
		Pipeline: []pipeline.Processor{passthrough{name: "a"}, passthrough{name: "b"}},
		Logger:   &nop,
		Metrics:  mc,
	})

	_, err := engine.Process(t.Context(), pipeline.Input{Messages: []messages.Message{
		{Role: messages.RoleUser, Content: messages.Text("hi")},
	}})
	require.NoError(t, err)

	s := mc.Stats()
	assert.Equal(t, int64(1), s.Runs)
	assert.Equal(t, int64(1), s.Stages["a"].Calls)
	assert.Equal(t, int64(1), s.Stages["b"].Calls)
}

type passthrough struct{ name string }

func (p passthrough) Name() string { return p.name }

func (p passthrough) Process(ctx context.Context, pc *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	return pipeline.Run(ctx, p.name, pc, func(context.Context, *pipeline.PipelineContext) error { return nil })
}

func TestTracker_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: true, LogPath: path}, nil)
	require.NoError(t, err)

	tracker.RecordRun(&monitoring.RunReport{RunID: "r1", Outcome: monitoring.OutcomeCompleted})
	tracker.RecordRun(&monitoring.RunReport{RunID: "r2", Outcome: monitoring.OutcomeAborted, AbortReason: "nope"})
	require.NoError(t, tracker.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r monitoring.RunReport
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"r1", "r2"}, ids)
}

func TestTracker_DisabledWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: false, LogPath: path}, nil)
	require.NoError(t, err)

	tracker.RecordRun(&monitoring.RunReport{RunID: "r1"})

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewRunReport(t *testing.T) {
	in := pipeline.Input{
		Model:    "gpt-4o",
		Provider: "openai",
		RunID:    "run-1",
		Messages: []messages.Message{{Role: messages.RoleUser, Content: messages.Text("a")}, {Role: messages.RoleUser, Content: messages.Text("b")}},
	}

	t.Run("completed", func(t *testing.T) {
		res := &pipeline.Result{
			Messages:     in.Messages[:1],
			Metadata:     map[string]any{"historyTruncated": true},
			InitialState: pipeline.InitialState{RunID: "run-1"},
			Stats: pipeline.Stats{
				Executed:  []string{"history_truncate", "message_cleanup"},
				Durations: map[string]time.Duration{"history_truncate": 3 * time.Microsecond, "message_cleanup": 7 * time.Microsecond},
			},
		}
		r := monitoring.NewRunReport("cli", "", in, res, nil, 5*time.Millisecond)

		assert.Equal(t, "run-1", r.RunID)
		assert.Equal(t, monitoring.OutcomeCompleted, r.Outcome)
		assert.Equal(t, 2, r.InputMessages)
		assert.Equal(t, 1, r.OutputMessages)
		assert.Equal(t, int64(5), r.TotalLatencyMs)
		assert.Equal(t, []monitoring.StageReport{
			{Name: "history_truncate", LatencyUs: 3},
			{Name: "message_cleanup", LatencyUs: 7},
		}, r.Stages)
	})

	t.Run("failed", func(t *testing.T) {
		r := monitoring.NewRunReport("/v1/pipeline/process", "req-1", in, nil, errors.New("boom"), time.Millisecond)

		assert.Equal(t, monitoring.OutcomeFailed, r.Outcome)
		assert.Equal(t, "boom", r.Error)
		assert.Equal(t, "req-1", r.RequestID)
		assert.Zero(t, r.OutputMessages)
	})
}

func TestAlertManager_SlowRun(t *testing.T) {
	var buf bytes.Buffer
	am := monitoring.NewAlertManager(monitoring.NewFromWriter(&buf, zerolog.DebugLevel), monitoring.AlertConfig{SlowRunThreshold: 10 * time.Millisecond})

	assert.False(t, am.FlagSlowRun("r1", time.Millisecond, "m"))
	assert.Empty(t, buf.String())

	assert.True(t, am.FlagSlowRun("r2", 20*time.Millisecond, "m"))
	assert.Contains(t, buf.String(), "slow_run")
	assert.Contains(t, buf.String(), `"run_id":"r2"`)
}

func TestAlertManager_DefaultThreshold(t *testing.T) {
	am := monitoring.NewAlertManager(monitoring.Nop(), monitoring.AlertConfig{})
	assert.False(t, am.FlagSlowRun("r", monitoring.DefaultSlowRunThreshold-time.Millisecond, "m"))
	assert.True(t, am.FlagSlowRun("r", monitoring.DefaultSlowRunThreshold, "m"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	rl := monitoring.NewRequestLogger(monitoring.NewFromWriter(&buf, zerolog.DebugLevel))

	rl.LogRun(&monitoring.RunReport{RequestID: "req", RunID: "run", Outcome: monitoring.OutcomeAborted})
	rl.LogResponse(&monitoring.ResponseInfo{RequestID: "req", StatusCode: 200})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"outcome":"aborted"`)
	assert.Contains(t, lines[1], `"status":200`)
}

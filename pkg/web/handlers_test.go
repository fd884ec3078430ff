package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paullozen/autofx/pkg/channel"
	"github.com/paullozen/autofx/pkg/channel/gochannel"
	"github.com/paullozen/autofx/pkg/events"
	"github.com/paullozen/autofx/pkg/orchestrator"
	"github.com/paullozen/autofx/pkg/stage"
	"github.com/paullozen/autofx/pkg/web"
)

// testEnv runs the handlers over a real orchestrator wired to the in-memory
// transport. Tests play the supervisor by publishing inbound events; the
// blocking test transport guarantees each event is fully handled before the
// publish returns.
type testEnv struct {
	app  *fiber.App
	orch *orchestrator.Orchestrator
	pub  message.Publisher
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	ch := channel.NewWatermillChannel(pub, sub)
	t.Cleanup(func() {
		_ = ch.Close()
	})

	catalog := stage.Default()
	orch := orchestrator.New(catalog, ch)
	require.NoError(t, orch.Start(context.Background()))

	handlers := web.NewAPIHandlers(orch, catalog, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	s := app.Group("/stages")
	s.Get("/", handlers.ListStages)
	s.Get("/:id", handlers.GetStage)
	s.Post("/:id/execute", handlers.ExecuteStage)
	s.Post("/:id/stop", handlers.StopStage)

	app.Post("/pipeline/run", handlers.RunPipeline)
	app.Post("/shutdown", handlers.Shutdown)
	app.Post("/input", handlers.SubmitInput)
	app.Get("/input-request", handlers.GetInputRequest)
	app.Get("/state", handlers.GetState)
	app.Get("/logs", handlers.GetLogs)
	app.Delete("/logs", handlers.ClearLogs)
	app.Get("/health", handlers.HealthCheck)

	return &testEnv{app: app, orch: orch, pub: pub}
}

// supervise publishes one inbound event the way the backend supervisor does.
func (env *testEnv) supervise(t *testing.T, event channel.Event) {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	require.NoError(t, env.pub.Publish(events.EventTopic, msg))
}

func (env *testEnv) connect(t *testing.T) {
	t.Helper()

	env.supervise(t, events.NewConnected("supervisor ready"))
	require.True(t, env.orch.Connected())
}

func (env *testEnv) request(t *testing.T, method, target string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewReader([]byte(raw))
		} else {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return raw
}

func TestListStages(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/stages/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Stages     []web.StageResponse `json:"stages"`
		TotalCount int                 `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(readBody(t, resp), &listing))
	assert.Equal(t, 12, listing.TotalCount)
	assert.Len(t, listing.Stages, 12)
}

func TestListStages_PipelineGroupKeepsOrder(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/stages/?group=pipeline", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Stages []web.StageResponse `json:"stages"`
	}

	require.NoError(t, json.Unmarshal(readBody(t, resp), &listing))
	require.Len(t, listing.Stages, 5)

	ids := make([]string, 0, len(listing.Stages))
	for _, s := range listing.Stages {
		ids = append(ids, s.ID)
		assert.Equal(t, orchestrator.StatusIdle, s.Status)
		assert.Zero(t, s.Progress)
	}

	assert.Equal(t, []string{"script", "srt", "suggestions", "images", "render"}, ids)
}

func TestListStages_UnknownGroup(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/stages/?group=bogus", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStage(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/stages/script", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body web.StageResponse

	require.NoError(t, json.Unmarshal(readBody(t, resp), &body))
	assert.Equal(t, "script", body.ID)
	assert.Equal(t, "Script Retrieval", body.Name)
	assert.Equal(t, "baixa_script.py", body.ScriptRef)
	assert.Equal(t, orchestrator.StatusIdle, body.Status)
}

func TestGetStage_NotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/stages/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem map[string]any

	require.NoError(t, json.Unmarshal(readBody(t, resp), &problem))
	assert.Equal(t, "not_found", problem["type"])
}

func TestExecuteStage_SupervisorUnavailable(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodPost, "/stages/script/execute", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var problem map[string]any

	require.NoError(t, json.Unmarshal(readBody(t, resp), &problem))
	assert.Equal(t, "supervisor_unavailable", problem["type"])
}

func TestExecuteStage_Accepted(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	resp := env.request(t, http.MethodPost, "/stages/script/execute", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body web.StageResponse

	require.NoError(t, json.Unmarshal(readBody(t, resp), &body))
	assert.Equal(t, "script", body.ID)
	assert.Equal(t, "script", env.orch.Selected())

	env.supervise(t, events.NewExecutionStarted("script"))
	assert.Equal(t, orchestrator.StatusRunning, env.orch.StageState("script").Status)
}

func TestStopStage_NotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	resp := env.request(t, http.MethodPost, "/stages/missing/stop", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStopStage_FlipsStateAndClearsLogs(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	env.supervise(t, events.NewExecutionStarted("script"))
	env.supervise(t, events.NewScriptOutput("script", "working", events.ClassInfo))
	require.NotEmpty(t, env.orch.Logs())

	resp := env.request(t, http.MethodPost, "/stages/script/stop", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body web.StageResponse

	require.NoError(t, json.Unmarshal(readBody(t, resp), &body))
	assert.Equal(t, orchestrator.StatusStopped, body.Status)
	assert.Zero(t, body.Progress)

	assert.Empty(t, env.orch.Logs())
}

func TestRunPipeline_SupervisorUnavailable(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodPost, "/pipeline/run", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunPipeline_ConflictWhileInFlight(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	first := env.request(t, http.MethodPost, "/pipeline/run", nil)
	defer func() { _ = first.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, first.StatusCode)

	require.Eventually(t, env.orch.AutoRunning, 2*time.Second, 10*time.Millisecond)

	second := env.request(t, http.MethodPost, "/pipeline/run", nil)
	defer func() { _ = second.Body.Close() }()

	assert.Equal(t, http.StatusConflict, second.StatusCode)

	// Fail the first stage so the background run halts and releases the
	// guard.
	env.supervise(t, events.NewExecutionFinished("script", events.OutcomeFailure))

	require.Eventually(t, func() bool {
		return !env.orch.AutoRunning()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdown_NothingRunning(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	resp := env.request(t, http.MethodPost, "/shutdown", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	logs := env.orch.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "No running stages to stop", logs[len(logs)-1].Message)
}

func TestShutdown_StopsRunningStages(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	env.supervise(t, events.NewExecutionStarted("script"))
	env.supervise(t, events.NewExecutionStarted("srt"))

	resp := env.request(t, http.MethodPost, "/shutdown", nil)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, orchestrator.StatusStopped, env.orch.StageState("script").Status)
	assert.Equal(t, orchestrator.StatusStopped, env.orch.StageState("srt").Status)
}

func TestSubmitInput_RejectsBadBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body any
	}{
		{name: "invalid JSON", body: "not-json{"},
		{name: "missing input field", body: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			resp := env.request(t, http.MethodPost, "/input", tt.body)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubmitInput_NoPendingRequestIsNoop(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodPost, "/input", web.SubmitInputRequest{Input: "ok"})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSubmitInput_AnswersPrompt(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	env.supervise(t, events.NewInputRequested("script", "Video URL:"))

	pending := env.request(t, http.MethodGet, "/input-request", nil)

	var before web.InputRequestResponse

	require.NoError(t, json.Unmarshal(readBody(t, pending), &before))
	assert.True(t, before.Pending)
	assert.Equal(t, "script", before.StageID)
	assert.Equal(t, "Video URL:", before.Prompt)

	resp := env.request(t, http.MethodPost, "/input", web.SubmitInputRequest{Input: "  https://example.com/v/42  "})
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cleared := env.request(t, http.MethodGet, "/input-request", nil)

	var after web.InputRequestResponse

	require.NoError(t, json.Unmarshal(readBody(t, cleared), &after))
	assert.False(t, after.Pending)
}

func TestGetState(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var state web.StateResponse

	require.NoError(t, json.Unmarshal(readBody(t, resp), &state))
	assert.False(t, state.Connected)
	assert.False(t, state.AutoRunning)
	assert.Empty(t, state.SelectedStage)
	assert.Empty(t, state.Stages)

	env.connect(t)
	env.supervise(t, events.NewExecutionStarted("render"))

	resp = env.request(t, http.MethodGet, "/state", nil)

	require.NoError(t, json.Unmarshal(readBody(t, resp), &state))
	assert.True(t, state.Connected)
	assert.Equal(t, orchestrator.StatusRunning, state.Stages["render"].Status)
}

func TestLogsLifecycle(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	env.connect(t)

	env.supervise(t, events.NewScriptOutput("script", "first line", events.ClassInfo))
	env.supervise(t, events.NewScriptOutput("srt", "second line", events.ClassInfo))

	resp := env.request(t, http.MethodGet, "/logs", nil)

	var listing struct {
		Logs       []orchestrator.LogEntry `json:"logs"`
		TotalCount int                     `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(readBody(t, resp), &listing))
	require.Equal(t, 3, listing.TotalCount)
	assert.Equal(t, "supervisor ready", listing.Logs[0].Message)
	assert.Equal(t, "first line", listing.Logs[1].Message)
	assert.Equal(t, "second line", listing.Logs[2].Message)

	wipe := env.request(t, http.MethodDelete, "/logs", nil)
	defer func() { _ = wipe.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, wipe.StatusCode)

	resp = env.request(t, http.MethodGet, "/logs", nil)
	require.NoError(t, json.Unmarshal(readBody(t, resp), &listing))
	assert.Zero(t, listing.TotalCount)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status   string `json:"status"`
		Checkers struct {
			Supervisor string `json:"supervisor"`
		} `json:"checkers"`
	}

	require.NoError(t, json.Unmarshal(readBody(t, resp), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disconnected", health.Checkers.Supervisor)

	env.connect(t)

	resp = env.request(t, http.MethodGet, "/health", nil)
	require.NoError(t, json.Unmarshal(readBody(t, resp), &health))
	assert.Equal(t, "connected", health.Checkers.Supervisor)
}

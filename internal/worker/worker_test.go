// Package worker_test tests the NATS worker for the audiobook engine.
package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/audiobook-engine/internal/ambience"
	"github.com/book-expert/audiobook-engine/internal/generator"
	"github.com/book-expert/audiobook-engine/internal/worker"
)

const (
	testGenerateSubject = "audiobook.generate"
	testStatusSubject   = "audiobook.status"
	testAmbienceSubject = "audiobook.ambience"
	testDoneSubject     = "audiobook.generation.done"
	requestTimeout      = 5 * time.Second
)

// mockJobStarter records start requests and serves canned statuses.
type mockJobStarter struct {
	mu       sync.Mutex
	startErr error
	started  []string
	lastOpts generator.Options
	statusBy map[string]generator.Status
}

func (m *mockJobStarter) Start(_ context.Context, slug string, opts generator.Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}

	m.started = append(m.started, slug)
	m.lastOpts = opts

	return nil
}

func (m *mockJobStarter) Status(slug string) generator.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.statusBy[slug]; ok {
		return status
	}

	return generator.Status{
		Slug: slug, State: generator.StateIdle, CurrentChunk: 0, ProcessedChunks: 0,
		TotalChunks: 0, Generated: 0, Failed: 0, Percent: 0, Error: "",
		StartedAt: time.Time{}, FinishedAt: time.Time{},
	}
}

// mockAmbience serves one canned generation result.
type mockAmbience struct {
	mu         sync.Mutex
	result     *ambience.Result
	err        error
	lastPrompt string
}

func (m *mockAmbience) Generate(_ context.Context, req ambience.Request) (*ambience.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrompt = req.Prompt

	if m.err != nil {
		return nil, m.err
	}

	return m.result, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func setupTest(t *testing.T, jobs *mockJobStarter, ambienceGen worker.AmbienceGenerator) *nats.Conn {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance, err := worker.NewNatsWorker(
		natsConnection, testGenerateSubject, testStatusSubject, testAmbienceSubject,
		jobs, ambienceGen, testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		shutdownErr := <-errChan
		assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
	})

	// Give the subscriptions a moment to register.
	require.NoError(t, natsConnection.Flush())

	return natsConnection
}

func testHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func TestGenerateRequest_Accepted(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: nil, started: nil,
		lastOpts: generator.Options{}, statusBy: nil,
	}
	natsConnection := setupTest(t, jobs, nil)

	request := worker.GenerateRequestEvent{
		Header:     testHeader(),
		Project:    "fourth-wing",
		Force:      true,
		StartChunk: 2,
		EndChunk:   5,
		ChunkIDs:   nil,
		Provider:   "cosyvoice",
		Method:     "auto",
		Speed:      1.1,
	}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testGenerateSubject, requestData, requestTimeout)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var ack worker.GenerateAckEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &ack))

	assert.True(t, ack.Accepted)
	assert.Empty(t, ack.Error)
	assert.Equal(t, "fourth-wing", ack.Project)
	assert.Equal(t, request.Header.WorkflowID, ack.Header.WorkflowID)
	assert.NotEqual(t, request.Header.EventID, ack.Header.EventID)

	jobs.mu.Lock()
	defer jobs.mu.Unlock()

	require.Equal(t, []string{"fourth-wing"}, jobs.started)
	assert.True(t, jobs.lastOpts.Force)
	assert.Equal(t, 2, jobs.lastOpts.StartChunk)
	assert.Equal(t, "cosyvoice", jobs.lastOpts.DefaultProvider)
	assert.InEpsilon(t, 1.1, jobs.lastOpts.DefaultSpeed, 1e-9)
}

func TestGenerateRequest_RejectedWhileInProgress(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: generator.ErrRunInProgress, started: nil,
		lastOpts: generator.Options{}, statusBy: nil,
	}
	natsConnection := setupTest(t, jobs, nil)

	request := worker.GenerateRequestEvent{
		Header: testHeader(), Project: "fourth-wing", Force: false,
		StartChunk: 0, EndChunk: 0, ChunkIDs: nil, Provider: "", Method: "", Speed: 0,
	}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testGenerateSubject, requestData, requestTimeout)
	require.NoError(t, err)

	var ack worker.GenerateAckEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &ack))

	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Error, "in progress")
}

func TestStatusRequest(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: nil, started: nil, lastOpts: generator.Options{},
		statusBy: map[string]generator.Status{
			"fourth-wing": {
				Slug: "fourth-wing", State: generator.StateInProgress, CurrentChunk: 12,
				ProcessedChunks: 12, TotalChunks: 40, Generated: 11, Failed: 1,
				Percent: 30, Error: "", StartedAt: time.Now(), FinishedAt: time.Time{},
			},
		},
	}
	natsConnection := setupTest(t, jobs, nil)

	request := worker.StatusRequestEvent{Header: testHeader(), Project: "fourth-wing"}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testStatusSubject, requestData, requestTimeout)
	require.NoError(t, err)

	var reply worker.StatusReplyEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	assert.Equal(t, generator.StateInProgress, reply.Status.State)
	assert.Equal(t, 12, reply.Status.CurrentChunk)
	assert.InDelta(t, 30.0, reply.Status.Percent, 1e-9)
}

func TestAmbienceRequest(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: nil, started: nil,
		lastOpts: generator.Options{}, statusBy: nil,
	}
	ambienceGen := &mockAmbience{
		mu:  sync.Mutex{},
		err: nil,
		result: &ambience.Result{
			OutputPath:      "/srv/ambience/rain_on_a_tin_roof.wav",
			DurationSeconds: 30,
			Elapsed:         time.Second,
		},
		lastPrompt: "",
	}
	natsConnection := setupTest(t, jobs, ambienceGen)

	request := worker.AmbienceRequestEvent{
		Header:          testHeader(),
		Prompt:          "rain on a tin roof",
		DurationSeconds: 30,
		Name:            "",
	}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testAmbienceSubject, requestData, requestTimeout)
	require.NoError(t, err)

	var reply worker.AmbienceReplyEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	assert.Empty(t, reply.Error)
	assert.Equal(t, "/srv/ambience/rain_on_a_tin_roof.wav", reply.OutputPath)
	assert.InDelta(t, 30.0, reply.DurationSeconds, 1e-9)

	ambienceGen.mu.Lock()
	defer ambienceGen.mu.Unlock()
	assert.Equal(t, "rain on a tin roof", ambienceGen.lastPrompt)
}

func TestAmbienceRequest_FailureReported(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: nil, started: nil,
		lastOpts: generator.Options{}, statusBy: nil,
	}
	ambienceGen := &mockAmbience{
		mu: sync.Mutex{}, result: nil, err: ambience.ErrPromptEmpty, lastPrompt: "",
	}
	natsConnection := setupTest(t, jobs, ambienceGen)

	request := worker.AmbienceRequestEvent{
		Header: testHeader(), Prompt: "", DurationSeconds: 30, Name: "",
	}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testAmbienceSubject, requestData, requestTimeout)
	require.NoError(t, err)

	var reply worker.AmbienceReplyEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	assert.Empty(t, reply.OutputPath)
	assert.Contains(t, reply.Error, "prompt cannot be empty")
}

func TestDonePublisher(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	received := make(chan *nats.Msg, 1)
	_, err = natsConnection.ChanSubscribe(testDoneSubject, received)
	require.NoError(t, err)
	require.NoError(t, natsConnection.Flush())

	publish := worker.NewDonePublisher(natsConnection, testDoneSubject, testLogger)
	publish(generator.Status{
		Slug: "fourth-wing", State: generator.StateCompleted, CurrentChunk: 40,
		ProcessedChunks: 40, TotalChunks: 40, Generated: 40, Failed: 0,
		Percent: 100, Error: "", StartedAt: time.Now(), FinishedAt: time.Now(),
	})

	select {
	case msg := <-received:
		var event worker.GenerationDoneEvent

		require.NoError(t, json.Unmarshal(msg.Data, &event))
		assert.Equal(t, "fourth-wing", event.Status.Slug)
		assert.Equal(t, generator.StateCompleted, event.Status.State)
		assert.NotEmpty(t, event.Header.EventID)
	case <-time.After(requestTimeout):
		t.Fatal("done event was never published")
	}
}

func TestStatusRequest_UnknownProjectIsIdle(t *testing.T) {
	t.Parallel()

	jobs := &mockJobStarter{
		mu: sync.Mutex{}, startErr: nil, started: nil,
		lastOpts: generator.Options{}, statusBy: nil,
	}
	natsConnection := setupTest(t, jobs, nil)

	request := worker.StatusRequestEvent{Header: testHeader(), Project: "unknown"}
	requestData, err := json.Marshal(request)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testStatusSubject, requestData, requestTimeout)
	require.NoError(t, err)

	var reply worker.StatusReplyEvent

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	assert.Equal(t, generator.StateIdle, reply.Status.State)
}

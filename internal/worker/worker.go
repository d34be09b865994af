// Package worker provides a NATS worker that serves audiobook generation
// requests and status queries.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/audiobook-engine/internal/ambience"
	"github.com/book-expert/audiobook-engine/internal/generator"
)

// ErrProjectSlugEmpty indicates a request without a project slug.
var ErrProjectSlugEmpty = errors.New("project slug cannot be empty")

// GenerateRequestEvent asks for a generation batch over NATS.
type GenerateRequestEvent struct {
	Header     events.EventHeader `json:"header"`
	Project    string             `json:"project"`
	Force      bool               `json:"force,omitempty"`
	StartChunk int                `json:"start_chunk,omitempty"`
	EndChunk   int                `json:"end_chunk,omitempty"`
	ChunkIDs   []int              `json:"chunk_ids,omitempty"`
	Provider   string             `json:"provider,omitempty"`
	Method     string             `json:"method,omitempty"`
	Speed      float64            `json:"speed,omitempty"`
}

// GenerateAckEvent is the immediate reply to a generation request.
type GenerateAckEvent struct {
	Header   events.EventHeader `json:"header"`
	Project  string             `json:"project"`
	Accepted bool               `json:"accepted"`
	Error    string             `json:"error,omitempty"`
}

// StatusRequestEvent asks for one project's generation status.
type StatusRequestEvent struct {
	Header  events.EventHeader `json:"header"`
	Project string             `json:"project"`
}

// StatusReplyEvent carries the status snapshot back to the requester.
type StatusReplyEvent struct {
	Header events.EventHeader `json:"header"`
	Status generator.Status   `json:"status"`
}

// GenerationDoneEvent announces that a background run reached a terminal
// state. It is published fire-and-forget on the done subject.
type GenerationDoneEvent struct {
	Header events.EventHeader `json:"header"`
	Status generator.Status   `json:"status"`
}

// AmbienceRequestEvent asks for one background soundscape.
type AmbienceRequestEvent struct {
	Header          events.EventHeader `json:"header"`
	Prompt          string             `json:"prompt"`
	DurationSeconds float64            `json:"duration_seconds"`
	Name            string             `json:"name,omitempty"`
}

// AmbienceReplyEvent reports where the generated soundscape landed.
type AmbienceReplyEvent struct {
	Header          events.EventHeader `json:"header"`
	OutputPath      string             `json:"output_path,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// JobStarter starts background generation runs and reports their status. The
// generator manager satisfies it; tests substitute a mock.
type JobStarter interface {
	Start(ctx context.Context, slug string, opts generator.Options) error
	Status(slug string) generator.Status
}

// AmbienceGenerator produces background soundscapes from text prompts. The
// ambience generator satisfies it; tests substitute a mock.
type AmbienceGenerator interface {
	Generate(ctx context.Context, req ambience.Request) (*ambience.Result, error)
}

// NatsWorker listens for generation, status, and ambience messages on NATS
// subjects. The ambience subject is optional; an empty subject or nil
// generator disables it.
type NatsWorker struct {
	natsConnection  *nats.Conn
	generateSubject string
	statusSubject   string
	ambienceSubject string
	jobs            JobStarter
	ambience        AmbienceGenerator
	log             *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	generateSubject string,
	statusSubject string,
	ambienceSubject string,
	jobs JobStarter,
	ambienceGen AmbienceGenerator,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection:  natsConnection,
		generateSubject: generateSubject,
		statusSubject:   statusSubject,
		ambienceSubject: ambienceSubject,
		jobs:            jobs,
		ambience:        ambienceGen,
		log:             log,
	}, nil
}

// Run subscribes to the configured subjects and blocks until the context is
// cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	generateSub, subErr := w.natsConnection.Subscribe(w.generateSubject, func(msg *nats.Msg) {
		w.handleGenerate(ctx, msg)
	})
	if subErr != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.generateSubject, subErr)
	}

	statusSub, statusErr := w.natsConnection.Subscribe(w.statusSubject, w.handleStatus)
	if statusErr != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.statusSubject, statusErr)
	}

	subscriptions := []*nats.Subscription{generateSub, statusSub}

	if w.ambienceSubject != "" && w.ambience != nil {
		ambienceSub, ambienceErr := w.natsConnection.Subscribe(w.ambienceSubject, func(msg *nats.Msg) {
			go w.handleAmbience(ctx, msg)
		})
		if ambienceErr != nil {
			return fmt.Errorf("failed to subscribe to subject %s: %w", w.ambienceSubject, ambienceErr)
		}

		subscriptions = append(subscriptions, ambienceSub)
	}

	<-ctx.Done()

	for _, subscription := range subscriptions {
		drainErr := subscription.Drain()
		if drainErr != nil {
			return fmt.Errorf("failed to drain subscription: %w", drainErr)
		}
	}

	return nil
}

func (w *NatsWorker) handleGenerate(ctx context.Context, msg *nats.Msg) {
	event, parseErr := parseGenerateEvent(msg)
	if parseErr != nil {
		w.log.Error("Failed to parse generation request: %v", parseErr)

		return
	}

	opts := generator.Options{
		Force:           event.Force,
		DryRun:          false,
		StartChunk:      event.StartChunk,
		EndChunk:        event.EndChunk,
		ChunkIDs:        event.ChunkIDs,
		DefaultProvider: event.Provider,
		DefaultMethod:   event.Method,
		DefaultSpeed:    event.Speed,
		Progress:        nil,
	}

	startErr := w.jobs.Start(ctx, event.Project, opts)

	ack := GenerateAckEvent{
		Header:   replyHeader(event.Header),
		Project:  event.Project,
		Accepted: startErr == nil,
		Error:    "",
	}

	if startErr != nil {
		ack.Error = startErr.Error()
		w.log.Warn("Rejected generation request for %q: %v", event.Project, startErr)
	} else {
		w.log.Info("Accepted generation request for %q (workflow %s)", event.Project, event.Header.WorkflowID)
	}

	replyErr := respondJSON(msg, ack)
	if replyErr != nil {
		w.log.Error("Failed to publish ack for workflow %s: %v", event.Header.WorkflowID, replyErr)
	}
}

func (w *NatsWorker) handleStatus(msg *nats.Msg) {
	var event StatusRequestEvent

	parseErr := json.Unmarshal(msg.Data, &event)
	if parseErr != nil {
		w.log.Error("Failed to parse status request: %v", parseErr)

		return
	}

	if event.Project == "" {
		w.log.Error("Status request without project slug")

		return
	}

	reply := StatusReplyEvent{
		Header: replyHeader(event.Header),
		Status: w.jobs.Status(event.Project),
	}

	replyErr := respondJSON(msg, reply)
	if replyErr != nil {
		w.log.Error("Failed to publish status reply for %q: %v", event.Project, replyErr)
	}
}

// handleAmbience runs one soundscape generation and replies with the result.
// Generation takes minutes, so it runs on its own goroutine per request.
func (w *NatsWorker) handleAmbience(ctx context.Context, msg *nats.Msg) {
	var event AmbienceRequestEvent

	parseErr := json.Unmarshal(msg.Data, &event)
	if parseErr != nil {
		w.log.Error("Failed to parse ambience request: %v", parseErr)

		return
	}

	reply := AmbienceReplyEvent{
		Header:          replyHeader(event.Header),
		OutputPath:      "",
		DurationSeconds: 0,
		Error:           "",
	}

	result, genErr := w.ambience.Generate(ctx, ambience.Request{
		Prompt:          event.Prompt,
		DurationSeconds: event.DurationSeconds,
		Name:            event.Name,
	})
	if genErr != nil {
		reply.Error = genErr.Error()
		w.log.Warn("Ambience generation failed (workflow %s): %v", event.Header.WorkflowID, genErr)
	} else {
		reply.OutputPath = result.OutputPath
		reply.DurationSeconds = result.DurationSeconds
	}

	replyErr := respondJSON(msg, reply)
	if replyErr != nil {
		w.log.Error("Failed to publish ambience reply for workflow %s: %v", event.Header.WorkflowID, replyErr)
	}
}

// NewDonePublisher returns a manager completion hook that publishes a
// GenerationDoneEvent for every run that reaches a terminal state.
func NewDonePublisher(
	natsConnection *nats.Conn,
	subject string,
	log *logger.Logger,
) func(generator.Status) {
	return func(status generator.Status) {
		event := GenerationDoneEvent{
			Header: events.EventHeader{
				Timestamp:  time.Now().UTC(),
				WorkflowID: uuid.NewString(),
				EventID:    uuid.NewString(),
				UserID:     "",
				TenantID:   "",
			},
			Status: status,
		}

		data, marshalErr := json.Marshal(event)
		if marshalErr != nil {
			log.Error("Failed to marshal done event for %q: %v", status.Slug, marshalErr)

			return
		}

		publishErr := natsConnection.Publish(subject, data)
		if publishErr != nil {
			log.Error("Failed to publish done event for %q: %v", status.Slug, publishErr)
		}
	}
}

func parseGenerateEvent(msg *nats.Msg) (*GenerateRequestEvent, error) {
	var event GenerateRequestEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Project == "" {
		return nil, ErrProjectSlugEmpty
	}

	return &event, nil
}

// replyHeader carries the workflow identity forward under a fresh event ID.
func replyHeader(header events.EventHeader) events.EventHeader {
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now().UTC()

	return header
}

func respondJSON(msg *nats.Msg, payload any) error {
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal reply event: %w", marshalErr)
	}

	err := msg.Respond(data)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

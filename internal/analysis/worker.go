package analysis

import (
	"context"

	"go.uber.org/zap"

	"diary/internal/metrics"
	"diary/internal/queue"
)

// MessageType tags analysis jobs on the queue.
const MessageType = "analysis"

// Job is the queue payload of an analysis run.
type Job struct {
	ID      string  `json:"id"`
	Request Request `json:"request"`
}

// Runner produces analysis text.
type Runner interface {
	Run(ctx context.Context, req Request) (string, error)
}

// Recorder stores run outcomes; *Repository implements it.
type Recorder interface {
	Finish(ctx context.Context, id, status, result, errMsg string) error
}

// Worker drains analysis jobs from a queue.
type Worker struct {
	queue    queue.Queue
	runner   Runner
	recorder Recorder
	log      *zap.Logger
}

// NewWorker wires a worker.
func NewWorker(q queue.Queue, runner Runner, recorder Recorder, log *zap.Logger) *Worker {
	return &Worker{queue: q, runner: runner, recorder: recorder, log: log}
}

// Enqueue publishes job.
func Enqueue(ctx context.Context, q queue.Queue, job Job) error {
	msg, err := queue.NewMessage(MessageType, job)
	if err != nil {
		return err
	}
	return q.Publish(ctx, msg)
}

// Run processes messages until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != MessageType {
			w.log.Debug("message skipped", zap.String("type", msg.Type))
			continue
		}
		var job Job
		if err := msg.Decode(&job); err != nil {
			w.log.Warn("bad analysis job", zap.Error(err))
			continue
		}
		w.Process(ctx, job)
	}
	w.log.Info("worker stopped")
	return nil
}

// Process runs one job and records the outcome.
func (w *Worker) Process(ctx context.Context, job Job) {
	log := w.log.With(zap.String("analysis_id", job.ID), zap.String("kind", string(job.Request.Kind)))
	log.Info("processing analysis")

	status, errMsg := StatusDone, ""
	result, err := w.runner.Run(ctx, job.Request)
	if err != nil {
		status, errMsg = StatusFailed, err.Error()
		log.Warn("analysis failed", zap.Error(err))
	}
	metrics.AnalysisJobs.WithLabelValues(string(job.Request.Kind), status).Inc()
	if err := w.recorder.Finish(ctx, job.ID, status, result, errMsg); err != nil {
		log.Error("record analysis outcome", zap.Error(err))
	}
}

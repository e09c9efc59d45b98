package services

import (
	"context"
	"sync"
	"time"

	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/models"
)

// InteractionSink accepts audit entries. Record must not block.
type InteractionSink interface {
	Record(participantID, sessionID string, in models.Interaction)
}

type InteractionStore interface {
	AppendInteraction(ctx context.Context, participantID, sessionID string, in models.Interaction) error
}

type interactionJob struct {
	participantID string
	sessionID     string
	interaction   models.Interaction
}

// Recorder writes interactions in arrival order on a single worker. Write
// failures and queue overflow are logged and dropped.
type Recorder struct {
	store        InteractionStore
	logger       *logger.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan interactionJob
	wg     sync.WaitGroup
}

func NewRecorder(store InteractionStore, log *logger.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Recorder{
		store:        store,
		logger:       log,
		writeTimeout: 5 * time.Second,
		queue:        make(chan interactionJob, buffer),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) Record(participantID, sessionID string, in models.Interaction) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("interaction dropped after close", "participant_id", participantID, "action", in.Action)
		return
	}
	select {
	case r.queue <- interactionJob{participantID: participantID, sessionID: sessionID, interaction: in}:
	default:
		r.logger.Warn("interaction queue full", "participant_id", participantID, "action", in.Action)
	}
}

// Close drains queued entries and stops the worker.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for job := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := r.store.AppendInteraction(ctx, job.participantID, job.sessionID, job.interaction)
		cancel()
		if err != nil {
			r.logger.Error("append interaction", "participant_id", job.participantID, "session", job.sessionID, "action", job.interaction.Action, "err", err)
		}
	}
}

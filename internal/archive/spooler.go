package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/cognidex/cognidex/internal/domain"
)

const defaultQueueDepth = 256

// Uploader is the object-storage surface the spooler depends on.
type Uploader interface {
	PutObject(ctx context.Context, key string, contentType string, body []byte) error
}

// Spooler buffers discovery results off the query path and uploads them
// as JSON batches in the background. Recording never blocks a query: a
// full queue drops the batch and logs, audit is best-effort by contract.
type Spooler struct {
	uploader Uploader
	queue    chan []*domain.DiscoveredKnowledge
	stopChan chan struct{}
	doneChan chan struct{}
	newID    func() string
}

// NewSpooler creates a Spooler over the given uploader.
func NewSpooler(uploader Uploader) *Spooler {
	return &Spooler{
		uploader: uploader,
		queue:    make(chan []*domain.DiscoveredKnowledge, defaultQueueDepth),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		newID:    uuid.NewString,
	}
}

// Record enqueues one query's results for upload.
func (s *Spooler) Record(ctx context.Context, results []*domain.DiscoveredKnowledge) error {
	if len(results) == 0 {
		return nil
	}
	select {
	case s.queue <- results:
		return nil
	default:
		return fmt.Errorf("audit queue full, dropping batch of %d results", len(results))
	}
}

// Start begins the upload loop. It runs until Stop is called or ctx is
// cancelled; on stop, queued batches are drained before returning.
func (s *Spooler) Start(ctx context.Context) {
	defer close(s.doneChan)

	log.Printf("audit spooler started (queue depth: %d)", cap(s.queue))

	for {
		select {
		case <-ctx.Done():
			log.Println("audit spooler stopped: context cancelled")
			return
		case <-s.stopChan:
			s.drain(ctx)
			log.Println("audit spooler stopped: stop signal received")
			return
		case batch := <-s.queue:
			s.upload(ctx, batch)
		}
	}
}

// Stop gracefully stops the spooler.
func (s *Spooler) Stop() {
	close(s.stopChan)
	<-s.doneChan
	log.Println("audit spooler shutdown complete")
}

func (s *Spooler) drain(ctx context.Context) {
	for {
		select {
		case batch := <-s.queue:
			s.upload(ctx, batch)
		default:
			return
		}
	}
}

func (s *Spooler) upload(ctx context.Context, batch []*domain.DiscoveredKnowledge) {
	body, err := json.Marshal(batch)
	if err != nil {
		log.Printf("audit: failed to marshal batch: %v", err)
		return
	}

	key := fmt.Sprintf("discoveries/%s/%s.json",
		batch[0].CreatedAt.UTC().Format("2006/01/02"), s.newID())
	if err := s.uploader.PutObject(ctx, key, "application/json", body); err != nil {
		log.Printf("audit: failed to upload %s: %v", key, err)
	}
}

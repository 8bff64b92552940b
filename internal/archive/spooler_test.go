package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/domain"
)

type captureUploader struct {
	mu      sync.Mutex
	keys    []string
	bodies  [][]byte
	err     error
	uploads chan struct{}
}

func newCaptureUploader() *captureUploader {
	return &captureUploader{uploads: make(chan struct{}, 16)}
}

func (u *captureUploader) PutObject(ctx context.Context, key string, contentType string, body []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.keys = append(u.keys, key)
	u.bodies = append(u.bodies, body)
	u.uploads <- struct{}{}
	return nil
}

func (u *captureUploader) snapshot() ([]string, [][]byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string{}, u.keys...), append([][]byte{}, u.bodies...)
}

func sampleResults() []*domain.DiscoveredKnowledge {
	return []*domain.DiscoveredKnowledge{{
		ID:             "res-1",
		Collection:     "col-1",
		Query:          "who discovered radium",
		DocID:          "doc-1",
		Sentence:       "Marie Curie discovered radium.",
		Subject:        "curie",
		Object:         "radium",
		CosineDistance: 0.12,
		Score:          0.9,
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestSpoolerUploadsRecordedBatch(t *testing.T) {
	uploader := newCaptureUploader()
	spooler := NewSpooler(uploader)
	spooler.newID = func() string { return "batch-1" }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		spooler.Start(ctx)
	}()

	require.NoError(t, spooler.Record(ctx, sampleResults()))

	select {
	case <-uploader.uploads:
	case <-time.After(2 * time.Second):
		t.Fatal("upload never happened")
	}

	spooler.Stop()
	wg.Wait()

	keys, bodies := uploader.snapshot()
	require.Len(t, keys, 1)
	assert.Equal(t, "discoveries/2025/06/01/batch-1.json", keys[0])

	var decoded []*domain.DiscoveredKnowledge
	require.NoError(t, json.Unmarshal(bodies[0], &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "res-1", decoded[0].ID)
}

func TestSpoolerDrainsQueueOnStop(t *testing.T) {
	uploader := newCaptureUploader()
	spooler := NewSpooler(uploader)

	ctx := context.Background()
	for range 3 {
		require.NoError(t, spooler.Record(ctx, sampleResults()))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		spooler.Start(ctx)
	}()

	spooler.Stop()
	wg.Wait()

	keys, _ := uploader.snapshot()
	assert.Len(t, keys, 3)
}

func TestSpoolerRecordEmptyBatchIsNoOp(t *testing.T) {
	spooler := NewSpooler(newCaptureUploader())
	assert.NoError(t, spooler.Record(context.Background(), nil))
}

func TestSpoolerFullQueueDoesNotBlock(t *testing.T) {
	// No consumer running: the queue fills up and Record must fail fast
	// instead of stalling the query path.
	spooler := NewSpooler(newCaptureUploader())
	ctx := context.Background()

	for range defaultQueueDepth {
		require.NoError(t, spooler.Record(ctx, sampleResults()))
	}

	err := spooler.Record(ctx, sampleResults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestSpoolerUploadErrorIsSwallowed(t *testing.T) {
	uploader := newCaptureUploader()
	uploader.err = errors.New("bucket gone")
	spooler := NewSpooler(uploader)

	ctx := context.Background()
	require.NoError(t, spooler.Record(ctx, sampleResults()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		spooler.Start(ctx)
	}()

	spooler.Stop()
	wg.Wait()

	keys, _ := uploader.snapshot()
	assert.Empty(t, keys)
}

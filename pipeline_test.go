package main

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_BatchCorrelation(t *testing.T) {
	fake := &fakeEmbedder{
		gate: make(chan struct{}),
	}

	worker := NewWorker(fake)
	pipeline := NewPipeline(worker, 5)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	futures := make([]*Future, 12)

	// keep the early-drain trigger quiet while submitting, as live decode
	// work would during a real run
	pipeline.reading.Add(1)

	var wg sync.WaitGroup

	wg.Go(func() {
		for i := range futures {
			futures[i] = pipeline.Submit(img)
		}

		pipeline.reading.Add(-1)
	})

	// the in-flight limiter parks submission 11 until the first batch
	// resolves, so release one batch, then wait for the rest to queue up
	fake.gate <- struct{}{}

	wg.Wait()

	fake.gate <- struct{}{}
	fake.gate <- struct{}{}

	require.NoError(t, pipeline.Drain())

	assert.Equal(t, []int{5, 5, 2}, fake.batches)

	for i, future := range futures {
		vector, err := future.Wait()

		require.NoError(t, err)
		require.Len(t, vector, 1)

		assert.Equal(t, float32(i+1), vector[0], "futures resolve in submission order")
	}

	assert.NoError(t, pipeline.Close())
}

func TestPipeline_Process(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.jpg")

	writePNG(t, good, color.White)
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))

	fake := &fakeEmbedder{}

	worker := NewWorker(fake)
	pipeline := NewPipeline(worker, 5)

	goodFuture := pipeline.Process(good)
	badFuture := pipeline.Process(bad)

	require.NoError(t, pipeline.Drain())

	vector, err := goodFuture.Wait()
	require.NoError(t, err)
	assert.NotNil(t, vector)

	vector, err = badFuture.Wait()
	require.NoError(t, err, "a decode failure is not an error, just a missing vector")
	assert.Nil(t, vector)

	assert.Equal(t, 1, fake.images)

	assert.NoError(t, pipeline.Close())
}

func TestPipeline_BatchFailure(t *testing.T) {
	boom := errors.New("model exploded")

	fake := &fakeEmbedder{
		fail: boom,
	}

	worker := NewWorker(fake)
	pipeline := NewPipeline(worker, 5)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	first := pipeline.Submit(img)
	second := pipeline.Submit(img)

	err := pipeline.Drain()
	require.ErrorIs(t, err, boom)

	_, err = first.Wait()
	assert.ErrorIs(t, err, boom)

	_, err = second.Wait()
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, pipeline.Close())
}

func TestPipeline_CloseBusy(t *testing.T) {
	t.Run("pending batch", func(t *testing.T) {
		fake := &fakeEmbedder{}

		worker := NewWorker(fake)
		pipeline := NewPipeline(worker, 5)

		img := image.NewRGBA(image.Rect(0, 0, 1, 1))

		pipeline.reading.Add(1)

		pipeline.Submit(img)
		pipeline.Submit(img)

		assert.ErrorIs(t, pipeline.Close(), ErrPipelineBusy)

		pipeline.reading.Add(-1)

		require.NoError(t, pipeline.Drain())
		assert.NoError(t, pipeline.Close())
	})

	t.Run("batch in transit", func(t *testing.T) {
		fake := &fakeEmbedder{
			gate: make(chan struct{}),
		}

		worker := NewWorker(fake)
		pipeline := NewPipeline(worker, 2)

		img := image.NewRGBA(image.Rect(0, 0, 1, 1))

		future := pipeline.Submit(img)

		assert.ErrorIs(t, pipeline.Close(), ErrPipelineBusy)

		fake.gate <- struct{}{}

		_, err := future.Wait()
		require.NoError(t, err)

		require.NoError(t, pipeline.Drain())
		assert.NoError(t, pipeline.Close())
	})
}

func TestWorker_Sequence(t *testing.T) {
	fake := &fakeEmbedder{}

	worker := NewWorker(fake)
	defer worker.Close()

	_, err := worker.EmbedTextBatch([]string{"one"})
	require.NoError(t, err)

	_, err = worker.EmbedTextBatch([]string{"two"})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), worker.sequence.Load(), "ids count up from 1, 0 stays reserved for shutdown")
}

func TestWorker_CloseTwice(t *testing.T) {
	worker := NewWorker(&fakeEmbedder{})

	worker.Close()
	worker.Close()

	_, open := <-worker.done

	assert.False(t, open)
}

func TestWorker_MismatchedResponseID(t *testing.T) {
	worker := &Worker{
		requests:  make(chan BatchRequest),
		responses: make(chan BatchResponse),
		done:      make(chan struct{}),
	}

	go func() {
		request := <-worker.requests

		worker.responses <- BatchResponse{
			ID:      request.ID + 1,
			Vectors: []Vector{{1}},
		}
	}()

	assert.Panics(t, func() {
		worker.EmbedTextBatch([]string{"hello"})
	})
}

func TestWorker_MismatchedVectorCount(t *testing.T) {
	worker := &Worker{
		requests:  make(chan BatchRequest),
		responses: make(chan BatchResponse),
		done:      make(chan struct{}),
	}

	go func() {
		request := <-worker.requests

		worker.responses <- BatchResponse{
			ID:      request.ID,
			Vectors: []Vector{{1}, {2}},
		}
	}()

	assert.Panics(t, func() {
		worker.EmbedTextBatch([]string{"hello"})
	})
}

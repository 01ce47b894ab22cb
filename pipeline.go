package main

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
)

var ErrPipelineBusy = errors.New("pipeline has unresolved work")

// Future is the single-assignment result slot for one submitted image. The
// pipeline resolves it exactly once, with a vector or with nothing.
type Future struct {
	done chan struct{}

	vector Vector
	err    error
}

func newFuture() *Future {
	return &Future{
		done: make(chan struct{}),
	}
}

func (f *Future) resolve(vector Vector, err error) {
	f.vector = vector
	f.err = err

	close(f.done)
}

func (f *Future) Wait() (Vector, error) {
	<-f.done

	return f.vector, f.err
}

type batchItem struct {
	image  image.Image
	future *Future
}

// Pipeline groups decoded images into batches for the worker and resolves
// per-image futures as responses arrive. Three limiters bound it: at most
// batchSize files decoding at once, at most 2x batchSize items alive between
// submission and resolution, and a single batch in transit to the worker.
type Pipeline struct {
	worker    *Worker
	batchSize int

	readSlots   chan struct{}
	flightSlots chan struct{}
	flushSlots  chan struct{}

	mx      sync.Mutex
	pending []batchItem

	reading atomic.Int64
	items   sync.WaitGroup

	failMx sync.Mutex
	failed error
}

func NewPipeline(worker *Worker, batchSize int) *Pipeline {
	return &Pipeline{
		worker:    worker,
		batchSize: batchSize,

		readSlots:   make(chan struct{}, batchSize),
		flightSlots: make(chan struct{}, 2*batchSize),
		flushSlots:  make(chan struct{}, 1),
	}
}

// Process decodes the image at path on a bounded decode slot and submits the
// result. A file that fails to decode resolves its future without a vector,
// so the caller can still record it, just embedding-less.
func (p *Pipeline) Process(path string) *Future {
	future := newFuture()

	p.items.Add(1)
	p.reading.Add(1)

	go func() {
		p.readSlots <- struct{}{}

		img, err := decodeImageFile(path)

		<-p.readSlots

		if err != nil {
			log.Warnf("Failed to decode %s: %v\n", path, err)

			if p.reading.Add(-1) == 0 {
				p.maybeFlush()
			}

			p.resolve(future, nil, nil)

			return
		}

		p.reading.Add(-1)

		p.enqueue(img, future)
	}()

	return future
}

// Submit hands an already decoded image to the pipeline.
func (p *Pipeline) Submit(img image.Image) *Future {
	future := newFuture()

	p.items.Add(1)

	p.enqueue(img, future)

	return future
}

// enqueue appends the item to the pending batch and triggers a flush once the
// batch is full, or early when no decode work is outstanding that could still
// top it up.
func (p *Pipeline) enqueue(img image.Image, future *Future) {
	p.flightSlots <- struct{}{}

	p.mx.Lock()

	p.pending = append(p.pending, batchItem{
		image:  img,
		future: future,
	})

	full := len(p.pending) >= p.batchSize

	p.mx.Unlock()

	if full || p.reading.Load() == 0 {
		p.maybeFlush()
	}
}

// maybeFlush dispatches up to one batch if no other batch is in transit.
func (p *Pipeline) maybeFlush() {
	select {
	case p.flushSlots <- struct{}{}:
	default:
		return
	}

	var batch []batchItem

	p.mx.Lock()

	if len(p.pending) > p.batchSize {
		batch = p.pending[:p.batchSize:p.batchSize]
		p.pending = p.pending[p.batchSize:]
	} else {
		batch = p.pending
		p.pending = nil
	}

	p.mx.Unlock()

	if len(batch) == 0 {
		<-p.flushSlots

		return
	}

	go p.flush(batch)
}

func (p *Pipeline) flush(batch []batchItem) {
	vectors, err := p.embed(batch)

	for i, item := range batch {
		if err != nil {
			p.resolve(item.future, nil, err)
		} else {
			p.resolve(item.future, vectors[i], nil)
		}

		<-p.flightSlots
	}

	<-p.flushSlots

	p.maybeFlush()
}

func (p *Pipeline) embed(batch []batchItem) ([]Vector, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}

	images := make([]image.Image, len(batch))

	for i, item := range batch {
		images[i] = item.image
	}

	vectors, err := p.worker.EmbedImageBatch(images)
	if err != nil {
		p.fail(err)

		return nil, err
	}

	return vectors, nil
}

func (p *Pipeline) resolve(future *Future, vector Vector, err error) {
	future.resolve(vector, err)

	p.items.Done()
}

func (p *Pipeline) fail(err error) {
	p.failMx.Lock()

	if p.failed == nil {
		p.failed = err
	}

	p.failMx.Unlock()
}

func (p *Pipeline) Err() error {
	p.failMx.Lock()
	defer p.failMx.Unlock()

	return p.failed
}

// Drain flushes whatever is still pending and blocks until every submitted
// item has resolved. It returns the first batch-level error of the run.
func (p *Pipeline) Drain() error {
	p.maybeFlush()

	p.items.Wait()

	// the final flush still holds its slot briefly after the last item
	// resolves, wait it out so the pipeline is idle when we return
	p.flushSlots <- struct{}{}
	<-p.flushSlots

	return p.Err()
}

// Close verifies the pipeline is idle and shuts the worker down. Closing
// while work is unresolved is a programming error, not a wait.
func (p *Pipeline) Close() error {
	if p.reading.Load() > 0 {
		return ErrPipelineBusy
	}

	p.mx.Lock()
	pending := len(p.pending)
	p.mx.Unlock()

	if pending > 0 {
		return ErrPipelineBusy
	}

	select {
	case p.flushSlots <- struct{}{}:
		<-p.flushSlots
	default:
		return ErrPipelineBusy
	}

	p.worker.Close()

	return nil
}

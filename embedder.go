package main

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

var ErrBatchMismatch = errors.New("embedding batch mismatch")

type BatchRequest struct {
	ID     uint64
	Images []image.Image
	Texts  []string
}

type BatchResponse struct {
	ID      uint64
	Vectors []Vector
	Err     error
}

// Embedder turns a batch of images or texts into one vector per input.
type Embedder interface {
	EmbedImages(images []image.Image) ([]Vector, error)
	EmbedTexts(texts []string) ([]Vector, error)
}

// Worker owns the model behind a request/response channel pair served by a
// single goroutine, so the model only ever sees one batch at a time. Requests
// carry a correlation id starting at 1; a request with id 0 shuts the
// goroutine down. Every response echoes the id of the request it answers.
type Worker struct {
	requests  chan BatchRequest
	responses chan BatchResponse
	done      chan struct{}

	sequence atomic.Uint64

	mx    sync.Mutex
	close sync.Once
}

func NewWorker(embedder Embedder) *Worker {
	worker := &Worker{
		requests:  make(chan BatchRequest),
		responses: make(chan BatchResponse),
		done:      make(chan struct{}),
	}

	go worker.run(embedder)

	return worker
}

func (w *Worker) run(embedder Embedder) {
	defer close(w.done)

	for request := range w.requests {
		if request.ID == 0 {
			return
		}

		var (
			vectors []Vector
			err     error
		)

		if request.Images != nil {
			vectors, err = embedder.EmbedImages(request.Images)
		} else {
			vectors, err = embedder.EmbedTexts(request.Texts)
		}

		w.responses <- BatchResponse{
			ID:      request.ID,
			Vectors: vectors,
			Err:     err,
		}
	}
}

func (w *Worker) EmbedImageBatch(images []image.Image) ([]Vector, error) {
	return w.roundTrip(BatchRequest{
		Images: images,
	}, len(images))
}

func (w *Worker) EmbedTextBatch(texts []string) ([]Vector, error) {
	return w.roundTrip(BatchRequest{
		Texts: texts,
	}, len(texts))
}

// roundTrip sends one batch and receives its paired response. A response
// whose id or vector count disagrees with the request means the protocol
// itself is broken, which no caller can recover from.
func (w *Worker) roundTrip(request BatchRequest, expected int) ([]Vector, error) {
	w.mx.Lock()
	defer w.mx.Unlock()

	request.ID = w.sequence.Add(1)

	w.requests <- request

	response := <-w.responses

	if response.ID != request.ID {
		log.MustPanic(fmt.Errorf("%w: sent id %d, received id %d", ErrBatchMismatch, request.ID, response.ID))
	}

	if response.Err != nil {
		return nil, response.Err
	}

	if len(response.Vectors) != expected {
		log.MustPanic(fmt.Errorf("%w: sent %d items, received %d vectors", ErrBatchMismatch, expected, len(response.Vectors)))
	}

	return response.Vectors, nil
}

func (w *Worker) Close() {
	w.close.Do(func() {
		w.requests <- BatchRequest{}

		<-w.done
	})
}

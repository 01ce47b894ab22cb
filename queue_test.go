package main

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	queue := NewQueue(4)

	var ran atomic.Int64

	for i := 0; i < 20; i++ {
		queue.Work("job", func() error {
			ran.Add(1)

			return nil
		})
	}

	queue.Wait()

	assert.Equal(t, int64(20), ran.Load())
}

func TestQueue_FailuresDontStall(t *testing.T) {
	queue := NewQueue(2)

	var ran atomic.Int64

	for i := 0; i < 10; i++ {
		queue.Work("job", func() error {
			ran.Add(1)

			return errors.New("nope")
		})
	}

	queue.Wait()

	assert.Equal(t, int64(10), ran.Load())
}

package main

import (
	"sync"
)

type QueueJob func() error

// Queue runs jobs on a fixed set of workers. Failures are logged under the
// name the job was enqueued with and do not stop the queue.
type Queue struct {
	wg   sync.WaitGroup
	jobs chan queueEntry
	once sync.Once
}

type queueEntry struct {
	name string
	job  QueueJob
}

func NewQueue(workers int) *Queue {
	q := &Queue{
		jobs: make(chan queueEntry),
	}

	for i := 0; i < workers; i++ {
		q.wg.Go(func() {
			for entry := range q.jobs {
				if err := entry.job(); err != nil {
					log.Warnf("Failed to process %s: %v\n", entry.name, err)
				}
			}
		})
	}

	return q
}

func (q *Queue) Work(name string, job QueueJob) {
	q.jobs <- queueEntry{
		name: name,
		job:  job,
	}
}

func (q *Queue) Wait() {
	q.once.Do(func() {
		close(q.jobs)
	})

	q.wg.Wait()
}

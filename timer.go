package main

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Timer struct {
	mx sync.Mutex

	order  []string
	timers map[string]time.Time
	times  map[string]time.Duration
}

func NewTimer() *Timer {
	return &Timer{
		timers: make(map[string]time.Time),
		times:  make(map[string]time.Duration),
	}
}

func (t *Timer) Start(name string) *Timer {
	t.mx.Lock()
	defer t.mx.Unlock()

	if _, ok := t.timers[name]; !ok {
		t.order = append(t.order, name)
	}

	t.timers[name] = time.Now()

	return t
}

func (t *Timer) Stop(name string) *Timer {
	t.mx.Lock()
	defer t.mx.Unlock()

	start, ok := t.timers[name]
	if !ok {
		return t
	}

	t.times[name] = time.Since(start)

	return t
}

// Summary lists the stopped phases in the order they were first started.
func (t *Timer) Summary() string {
	t.mx.Lock()
	defer t.mx.Unlock()

	var parts []string

	for _, name := range t.order {
		took, ok := t.times[name]
		if !ok {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s %s", name, took.Round(time.Millisecond)))
	}

	return strings.Join(parts, ", ")
}

// Package queuetest records enqueued tasks in memory.
package queuetest

import (
	"context"
	"encoding/json"
	"sync"
)

type Task struct {
	Topic   string
	Payload json.RawMessage
}

// Recorder implements queue.Enqueuer. Set Err to make Enqueue fail.
type Recorder struct {
	mu    sync.Mutex
	tasks []Task
	Err   error
}

func (r *Recorder) Enqueue(_ context.Context, topic string, payload any) error {
	if r.Err != nil {
		return r.Err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, Task{Topic: topic, Payload: body})
	return nil
}

func (r *Recorder) Tasks(topic string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Task
	for _, t := range r.tasks {
		if topic == "" || t.Topic == topic {
			out = append(out, t)
		}
	}
	return out
}

// Decode unmarshals every recorded payload for topic into T.
func Decode[T any](r *Recorder, topic string) []T {
	var out []T
	for _, t := range r.Tasks(topic) {
		var v T
		if err := json.Unmarshal(t.Payload, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

package router

import (
	"log/slog"
	"sync"
)

// Fan copies every value from one input channel to each named subscriber.
// A subscriber whose buffer is full misses that value; a slow consumer never
// holds up the others or the producer.
type Fan[T any] struct {
	name    string
	mu      sync.Mutex
	input   <-chan T
	outputs map[string]chan T
	dropped map[string]uint64
}

func NewFan[T any](name string, input <-chan T) *Fan[T] {
	return &Fan[T]{
		name:    name,
		input:   input,
		outputs: make(map[string]chan T),
		dropped: make(map[string]uint64),
	}
}

// Subscribe registers client with a buffer of depth values. Subscribing the
// same client twice panics.
func (f *Fan[T]) Subscribe(client string, depth int) <-chan T {
	slog.Debug("subscribing to fan", "fan", f.name, "client", client, "module", "router")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[client]; ok {
		panic("router: client already subscribed: " + client)
	}
	if depth < 1 {
		depth = 1
	}
	c := make(chan T, depth)
	f.outputs[client] = c
	return c
}

func (f *Fan[T]) Unsubscribe(client string) {
	slog.Debug("unsubscribing from fan", "fan", f.name, "client", client, "module", "router")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.outputs[client]
	if !ok {
		panic("router: client not subscribed: " + client)
	}
	close(c)
	delete(f.outputs, client)
}

// Dropped reports how many values client has missed.
func (f *Fan[T]) Dropped(client string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped[client]
}

// Run distributes values until the input closes, then closes every
// subscriber channel.
func (f *Fan[T]) Run() error {
	for v := range f.input {
		f.mu.Lock()
		for client, ch := range f.outputs {
			select {
			case ch <- v:
			default:
				f.dropped[client]++
				slog.Debug("fan subscriber behind, dropping value", "fan", f.name, "client", client, "module", "router")
			}
		}
		f.mu.Unlock()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for client, ch := range f.outputs {
		close(ch)
		delete(f.outputs, client)
	}
	return nil
}

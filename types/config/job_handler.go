package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc executes one job. It receives the job's opaque config and must
// return when ctx is done.
type HandlerFunc func(ctx context.Context, config json.RawMessage) error

type HandlerRegistry struct {
	handlers map[string]HandlerFunc
	mutex    sync.RWMutex
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a new job handler by job type.
func (r *HandlerRegistry) Register(jobType string, handler HandlerFunc) error {
	if jobType == "" {
		return fmt.Errorf("handler job type is required")
	}
	if handler == nil {
		return fmt.Errorf("handler '%s' is nil", jobType)
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("handler '%s' already registered", jobType)
	}
	r.handlers[jobType] = handler
	return nil
}

// RegisterAll registers every MethodHandler, stopping at the first error.
func (r *HandlerRegistry) RegisterAll(handlers []MethodHandler) error {
	for _, h := range handlers {
		if err := r.Register(h.JobType, h.Func); err != nil {
			return err
		}
	}
	return nil
}

func (r *HandlerRegistry) Lookup(jobType string) (HandlerFunc, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *HandlerRegistry) Exists(jobType string) bool {
	_, ok := r.Lookup(jobType)
	return ok
}

// List returns the registered job types in sorted order.
func (r *HandlerRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

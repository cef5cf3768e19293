package executor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// Registry maps artifact extensions to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry creates a registry that launches unmatched artifacts with fallback.
func NewRegistry(fallback Executor) *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		fallback:  fallback,
	}
}

// Register binds an extension (without the leading dot) to an executor.
func (r *Registry) Register(ext string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[ext] = e
}

// Get retrieves the executor bound to an extension.
func (r *Registry) Get(ext string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[ext]
	return e, ok
}

// Resolve returns the executor for path. Matching is case-sensitive on the
// suffix after the last dot of the file name.
func (r *Registry) Resolve(path string) Executor {
	if e, ok := r.Get(Extension(path)); ok {
		return e
	}
	return r.fallback
}

// Capabilities returns all registered extensions.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]string, 0, len(r.executors))
	for ext := range r.executors {
		caps = append(caps, ext)
	}
	return caps
}

// HealthCheckAll runs health checks on all executors, keyed by executor name.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]error)
	for _, e := range r.executors {
		results[e.Name()] = e.HealthCheck(ctx)
	}
	if r.fallback != nil {
		results[r.fallback.Name()] = r.fallback.HealthCheck(ctx)
	}
	return results
}

// NewDefaultRegistry creates a registry with the jar, sh and direct executors.
func NewDefaultRegistry(javaBin, shellBin string) *Registry {
	reg := NewRegistry(NewBinaryExecutor())
	reg.Register("jar", NewJarExecutor(javaBin))
	reg.Register("sh", NewShellExecutor(shellBin))
	return reg
}

// Extension returns the suffix after the last dot of the file name, or "" if
// there is none.
func Extension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

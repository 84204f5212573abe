package router

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sidv1711/slack-bot/pkg/adapter"
	"github.com/sidv1711/slack-bot/pkg/service"
)

// snapshot pairs a service set with the classifier built from it. Both are
// replaced together and never mutated after publication.
type snapshot struct {
	services   map[string]service.Service
	classifier *Classifier
}

// Registry maps capability names to handlers. Reads are lock-free; writers
// build a new snapshot and swap it in.
type Registry struct {
	mu       sync.Mutex
	current  atomic.Pointer[snapshot]
	llm      adapter.Adapter
	fallback string
	opts     []ClassifierOption
}

// NewRegistry creates a registry holding fallback and services. The
// fallback can never be removed. opts are applied to every classifier the
// registry builds.
func NewRegistry(llm adapter.Adapter, fallback service.Service, services []service.Service, opts ...ClassifierOption) (*Registry, error) {
	if fallback == nil || strings.TrimSpace(fallback.Name()) == "" {
		return nil, fmt.Errorf("registry requires a fallback service")
	}
	r := &Registry{llm: llm, fallback: fallback.Name(), opts: opts}

	set := map[string]service.Service{fallback.Name(): fallback}
	for _, svc := range services {
		if err := checkService(svc); err != nil {
			return nil, err
		}
		if svc.Name() == r.fallback {
			return nil, fmt.Errorf("service %q duplicates the fallback", svc.Name())
		}
		set[svc.Name()] = svc
	}
	r.current.Store(r.build(set))
	return r, nil
}

func checkService(svc service.Service) error {
	if svc == nil {
		return fmt.Errorf("service is nil")
	}
	if strings.TrimSpace(svc.Name()) == "" {
		return fmt.Errorf("service name is empty")
	}
	return nil
}

func (r *Registry) build(set map[string]service.Service) *snapshot {
	descriptions := make(map[string]string, len(set))
	for name, svc := range set {
		descriptions[name] = svc.Description()
	}
	return &snapshot{
		services:   set,
		classifier: NewClassifier(r.llm, descriptions, r.fallback, r.opts...),
	}
}

func (r *Registry) load() *snapshot {
	return r.current.Load()
}

// Add registers svc, replacing any service with the same name.
func (r *Registry) Add(svc service.Service) error {
	if err := checkService(svc); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	set := make(map[string]service.Service, len(old.services)+1)
	for name, s := range old.services {
		set[name] = s
	}
	set[svc.Name()] = svc
	r.current.Store(r.build(set))
	return nil
}

// Remove unregisters name. Removing the fallback is an error.
func (r *Registry) Remove(name string) error {
	if name == r.fallback {
		return fmt.Errorf("cannot remove %s service: it is the fallback", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.load()
	if _, ok := old.services[name]; !ok {
		return fmt.Errorf("%w: %s", service.ErrUnknownCapability, name)
	}
	set := make(map[string]service.Service, len(old.services))
	for n, s := range old.services {
		if n != name {
			set[n] = s
		}
	}
	r.current.Store(r.build(set))
	return nil
}

// Get returns the service registered under name.
func (r *Registry) Get(name string) (service.Service, bool) {
	svc, ok := r.load().services[name]
	return svc, ok
}

// Fallback returns the name of the fallback service.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return sortedNames(r.load().services)
}

// Classifier returns the classifier matching the current service set.
func (r *Registry) Classifier() *Classifier {
	return r.load().classifier
}

// Capabilities describes every registered service.
func (r *Registry) Capabilities() map[string]service.Capability {
	snap := r.load()
	out := make(map[string]service.Capability, len(snap.services))
	for name, svc := range snap.services {
		out[name] = svc.Capabilities()
	}
	return out
}

func sortedNames(set map[string]service.Service) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

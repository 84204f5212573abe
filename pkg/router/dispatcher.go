// Package router picks the capability that should answer a request and
// invokes it.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sidv1711/slack-bot/pkg/service"
)

// Recorder receives routing telemetry.
type Recorder interface {
	RecordRoute(service, method string, fallback bool)
	RecordResult(service string, success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordRoute(string, string, bool) {}
func (nopRecorder) RecordResult(string, bool)        {}

// Response is a handler result annotated with its routing decision.
type Response struct {
	Result     *service.Result
	Routing    Decision
	Timestamp  any
	Suggestion string
}

// Success reports whether the handler succeeded.
func (r *Response) Success() bool {
	return r.Result != nil && r.Result.Success
}

// Fields flattens the response into the wire shape: the result's fields
// plus "routing", "timestamp" and an optional "suggestion".
func (r *Response) Fields() map[string]any {
	var out map[string]any
	if r.Result != nil {
		out = r.Result.Fields()
	} else {
		out = map[string]any{"success": false}
	}
	out["routing"] = r.Routing
	out["timestamp"] = r.Timestamp
	if r.Suggestion != "" {
		out["suggestion"] = r.Suggestion
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// Dispatcher routes inputs to registered services.
type Dispatcher struct {
	registry *Registry
	recorder Recorder
	logger   *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder sets the telemetry sink.
func WithRecorder(rec Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if rec != nil {
			d.recorder = rec
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Route answers input with the forced service when one is named, otherwise
// with the classifier's pick. Unknown names and inputs the chosen service
// rejects go to the fallback. Route never panics and always returns a
// response.
func (d *Dispatcher) Route(ctx context.Context, input string, rc service.RequestContext, forced string) (resp *Response) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprint(p)
			d.logger.Error("routing panic", zap.String("panic", msg), zap.Stack("stack"))
			resp = &Response{
				Result: &service.Result{
					Service: "error",
					Error:   "AI routing error: " + msg,
					Err:     fmt.Errorf("ai routing error: %v", p),
				},
				Routing:   Decision{Method: MethodErrorFallback, Error: msg},
				Timestamp: rc.Timestamp(),
			}
			d.recorder.RecordRoute("error", MethodErrorFallback, true)
			d.recorder.RecordResult("error", false)
		}
	}()

	if strings.TrimSpace(input) == "" {
		d.recorder.RecordRoute("", MethodRejected, false)
		return &Response{
			Result: &service.Result{
				Error: "Empty input provided",
				Err:   service.ErrEmptyInput,
			},
			Routing:    Decision{Method: MethodRejected},
			Timestamp:  rc.Timestamp(),
			Suggestion: "Please provide a question or request",
		}
	}

	snap := d.registry.load()
	fallback := d.registry.fallback

	var decision Decision
	if name := strings.TrimSpace(forced); name != "" {
		decision = Decision{
			Service:    name,
			Confidence: 1.0,
			Reasoning:  "Service manually specified",
			Method:     MethodForced,
		}
	} else {
		decision = snap.classifier.Classify(ctx, input)
		decision.Method = MethodClassified
	}

	svc, ok := snap.services[decision.Service]
	if !ok {
		d.logger.Warn("unknown service, using fallback",
			zap.String("service", decision.Service), zap.String("fallback", fallback))
		decision.FallbackReason = fmt.Sprintf("%v: %s", service.ErrUnknownCapability, decision.Service)
		decision.Service = fallback
		decision.Fallback = true
		svc = snap.services[fallback]
	}

	if verdict := svc.Validate(input); !verdict.Valid {
		d.logger.Info("input rejected by service, using fallback",
			zap.String("service", decision.Service), zap.String("reason", verdict.Reason))
		if decision.FallbackReason == "" {
			decision.FallbackReason = fmt.Sprintf("%v: %s", service.ErrValidationRejected, decision.Service)
		}
		decision.Service = fallback
		decision.Fallback = true
		decision.ValidationError = verdict.Reason
		svc = snap.services[fallback]
	}

	result := svc.Process(ctx, input, rc)
	if result == nil {
		result = service.Failure(svc.Name(), "", errors.New("service returned no result"))
	}

	d.recorder.RecordRoute(decision.Service, decision.Method, decision.Fallback)
	d.recorder.RecordResult(decision.Service, result.Success)
	d.logger.Info("request routed",
		zap.String("service", decision.Service),
		zap.Float64("confidence", decision.Confidence),
		zap.String("method", decision.Method),
		zap.Bool("fallback", decision.Fallback),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Result:    result,
		Routing:   decision,
		Timestamp: rc.Timestamp(),
	}
}

// ListCapabilities describes every registered service.
func (d *Dispatcher) ListCapabilities() map[string]service.Capability {
	return d.registry.Capabilities()
}

// Validate runs name's local validation on input without processing it.
func (d *Dispatcher) Validate(input, name string) service.Verdict {
	svc, ok := d.registry.Get(name)
	if !ok {
		return service.Reject(fmt.Sprintf("Service '%s' does not exist", name),
			"Available services: "+strings.Join(d.registry.Names(), ", "))
	}
	return svc.Validate(input)
}

// Examples returns documented examples for name, or for every service when
// name is empty.
func (d *Dispatcher) Examples(name string) (map[string][]service.Example, error) {
	if name != "" {
		svc, ok := d.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", service.ErrUnknownCapability, name)
		}
		return map[string][]service.Example{name: svc.Examples()}, nil
	}
	snap := d.registry.load()
	out := make(map[string][]service.Example, len(snap.services))
	for n, svc := range snap.services {
		out[n] = svc.Examples()
	}
	return out, nil
}

// Stats summarizes the router.
type Stats struct {
	TotalServices         int      `json:"total_services"`
	AvailableServices     []string `json:"available_services"`
	Fallback              string   `json:"fallback_service"`
	RouterStatus          string   `json:"router_status"`
	ClassificationService string   `json:"classification_service"`
	Features              []string `json:"features"`
}

// Stats reports the registered services.
func (d *Dispatcher) Stats() Stats {
	names := d.registry.Names()
	return Stats{
		TotalServices:         len(names),
		AvailableServices:     names,
		Fallback:              d.registry.Fallback(),
		RouterStatus:          "operational",
		ClassificationService: "enabled",
		Features: []string{
			"Intent classification",
			"Service routing",
			"Input validation",
			"Fallback handling",
			"Error recovery",
		},
	}
}

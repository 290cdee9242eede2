// Package scalingcomponent holds the ScalingComponentManager registry and
// the Adapter capability every scaling-component kind implements.
package scalingcomponent

import (
	"context"
	"fmt"
)

// Ack is the successful result of an adapter invocation.
type Ack struct {
	Message string
}

// AdapterErrorKind classifies why an adapter invocation failed.
type AdapterErrorKind string

const (
	AdapterAuthFailed     AdapterErrorKind = "AuthFailed"
	AdapterTargetNotFound AdapterErrorKind = "TargetNotFound"
	AdapterRateLimited    AdapterErrorKind = "RateLimited"
	AdapterTimeout        AdapterErrorKind = "Timeout"
	AdapterUnknown        AdapterErrorKind = "Unknown"
)

// AdapterError is the typed error every Adapter.Apply call returns on
// failure, surfaced verbatim into AutoscalingHistory's fail_message.
type AdapterError struct {
	Kind    AdapterErrorKind
	Message string
	Cause   error
}

func (e *AdapterError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *AdapterError) Unwrap() error { return e.Cause }

// NewAdapterError wraps cause as the given kind of AdapterError.
func NewAdapterError(kind AdapterErrorKind, cause error) *AdapterError {
	return &AdapterError{Kind: kind, Message: string(kind), Cause: cause}
}

// Adapter is the capability every scaling-component kind implements. An
// adapter invocation is assumed non-idempotent unless the adapter
// documents otherwise; nothing above this layer retries it silently.
type Adapter interface {
	// Apply validates params against the adapter's kind-specific schema
	// on every call, builds any expensive client on first use (caching it
	// for subsequent calls), then performs the scaling action.
	Apply(ctx context.Context, params map[string]any) (Ack, *AdapterError)
}

// AdapterFactory builds an Adapter bound to one ScalingComponent's
// metadata. Returning an error rejects the component, and with it the
// whole batch passed to Manager.AddDefinitions.
type AdapterFactory func(metadata map[string]any) (Adapter, error)

// ErrUnknownComponent is returned by Dispatch when no adapter is
// registered for the given component id.
type ErrUnknownComponent struct {
	ComponentID string
}

func (e *ErrUnknownComponent) Error() string {
	return fmt.Sprintf("unknown scaling component: %s", e.ComponentID)
}

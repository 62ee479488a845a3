package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tripdesk/concierge/internal/session"
	"github.com/tripdesk/concierge/pkg/logging"
)

// Invocation is the scope handed to a function adapter: the decoded call
// arguments plus the conversation the call belongs to.
type Invocation struct {
	Args    map[string]any
	Channel string
	Session *session.Session
}

// Adapter executes one named assistant function against its backend.
// Implementations return the serialized output destined for the tool output
// slot; non-string backend results must be JSON-encoded by the adapter.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// Registry resolves assistant function names to their adapters.
type Registry struct {
	adapters map[string]Adapter
	logger   *logging.Logger
}

// NewRegistry builds a registry from the supplied adapters.
func NewRegistry(logger *logging.Logger, adapters ...Adapter) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	reg := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		logger:   logger,
	}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, dup := reg.adapters[a.Name()]; dup {
			panic(fmt.Sprintf("functions: duplicate adapter registered for %q", a.Name()))
		}
		reg.adapters[a.Name()] = a
	}
	return reg
}

// Resolve returns the adapter for a function name.
func (r *Registry) Resolve(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered function names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EncodeResult serializes an adapter result for the tool output slot. Strings
// pass through untouched; everything else is JSON-encoded.
func EncodeResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("functions: missing argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("functions: argument %q is not a string", key)
	}
	return s, nil
}

func optionalStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("functions: missing argument %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("functions: argument %q is not an integer: %w", key, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("functions: argument %q is not a number", key)
	}
}

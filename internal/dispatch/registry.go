package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrRouteExists = errors.New("dispatch: route already registered")
	ErrHandlerNil  = errors.New("dispatch: handler is nil")
	ErrInvalidName = errors.New("dispatch: invalid handler name")
)

// Route is the (class, instruction) routing key.
type Route struct {
	Class       byte
	Instruction byte
}

func (r Route) String() string {
	return fmt.Sprintf("%02X/%02X", r.Class, r.Instruction)
}

// RouteInfo describes one registered handler.
type RouteInfo struct {
	Route Route
	Name  string
}

type entry struct {
	name    string
	handler Handler
}

// Registry collects handlers at startup; a Dispatcher snapshots it.
type Registry struct {
	items map[Route]entry
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[Route]entry)}
}

// Register binds handler to route under a display name.
func (r *Registry) Register(route Route, name string, handler Handler) error {
	if handler == nil {
		return ErrHandlerNil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name for route %s", ErrInvalidName, route)
	}
	if prev, ok := r.items[route]; ok {
		return fmt.Errorf("%w: %s held by %q", ErrRouteExists, route, prev.name)
	}
	r.items[route] = entry{name: name, handler: handler}
	return nil
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(route Route, name string, fn HandlerFunc) error {
	if fn == nil {
		return ErrHandlerNil
	}
	return r.Register(route, name, fn)
}

// Resolve returns the handler bound to route.
func (r *Registry) Resolve(route Route) (Handler, bool) {
	e, ok := r.items[route]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

func (r *Registry) Len() int {
	return len(r.items)
}

// Routes returns deterministic ordering by class then instruction.
func (r *Registry) Routes() []RouteInfo {
	return sortedRoutes(r.items)
}

func sortedRoutes(items map[Route]entry) []RouteInfo {
	out := make([]RouteInfo, 0, len(items))
	for route, e := range items {
		out = append(out, RouteInfo{Route: route, Name: e.name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Route.Class != out[j].Route.Class {
			return out[i].Route.Class < out[j].Route.Class
		}
		return out[i].Route.Instruction < out[j].Route.Instruction
	})
	return out
}

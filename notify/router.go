package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/pensionportal/recovery"
)

var ErrNoRoute = errors.New("no notifier for contact method")

// Router dispatches a delivery to the notifier registered for its method.
type Router struct {
	routes map[recovery.ContactMethod]recovery.Notifier
}

func NewRouter() *Router {
	return &Router{routes: make(map[recovery.ContactMethod]recovery.Notifier)}
}

// Handle registers n for method, replacing any previous registration.
func (r *Router) Handle(method recovery.ContactMethod, n recovery.Notifier) *Router {
	r.routes[method] = n
	return r
}

// Supports reports whether a notifier is registered for method.
func (r *Router) Supports(method recovery.ContactMethod) bool {
	n, ok := r.routes[method]
	return ok && n != nil
}

func (r *Router) Deliver(ctx context.Context, d recovery.Delivery) error {
	n, ok := r.routes[d.Method]
	if !ok || n == nil {
		return fmt.Errorf("%w: %q", ErrNoRoute, d.Method)
	}
	return n.Deliver(ctx, d)
}

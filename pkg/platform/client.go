// Package platform decorates an engine.Platform with interceptors for
// retries, metrics and call logging.
package platform

import (
	"context"
	"encoding/json"

	"enginectl/pkg/engine"
)

// Operation names reported to interceptors.
const (
	OpCreateDeployment = "create_deployment"
	OpGetDeployment    = "get_deployment"
	OpListDeployments  = "list_deployments"
	OpDeleteDeployment = "delete_deployment"
)

// Call describes one remote invocation.
type Call struct {
	Op         string // Operation name; queries use "query:<method>"
	Resource   string // Target resource name, empty for list
	Idempotent bool   // Safe to repeat after a failure
}

// Handler performs the wrapped call.
type Handler func(ctx context.Context) error

// Interceptor runs around a call and decides whether and how often to invoke next.
type Interceptor func(ctx context.Context, call Call, next Handler) error

// EventObserver is notified for every streamed event.
type EventObserver func(call Call)

// Client implements engine.Platform over another Platform.
type Client struct {
	base         engine.Platform
	interceptors []Interceptor
	observers    []EventObserver
}

// Option configures a Client.
type Option func(*Client)

// WithInterceptor appends a custom interceptor. Earlier interceptors run outermost.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, i)
	}
}

// WithEventObserver registers a stream event observer.
func WithEventObserver(o EventObserver) Option {
	return func(c *Client) {
		c.observers = append(c.observers, o)
	}
}

// New wraps base with the given options.
func New(base engine.Platform, opts ...Option) *Client {
	c := &Client{base: base}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ engine.Platform = (*Client)(nil)

// idempotentMethods are class methods that only read state.
//
//nolint:gochecknoglobals // Static lookup table
var idempotentMethods = map[string]bool{
	engine.MethodGetSession:   true,
	engine.MethodListSessions: true,
}

func queryOp(method string) string {
	return "query:" + method
}

func (c *Client) invoke(ctx context.Context, call Call, h Handler) error {
	next := h
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		inner := next
		next = func(ctx context.Context) error {
			return interceptor(ctx, call, inner)
		}
	}
	return next(ctx)
}

func (c *Client) CreateDeployment(ctx context.Context, spec *engine.DeploymentSpec) (*engine.Deployment, error) {
	var d *engine.Deployment
	err := c.invoke(ctx, Call{Op: OpCreateDeployment}, func(ctx context.Context) error {
		var err error
		d, err = c.base.CreateDeployment(ctx, spec)
		return err
	})
	return d, err
}

func (c *Client) GetDeployment(ctx context.Context, name string) (*engine.Deployment, error) {
	var d *engine.Deployment
	err := c.invoke(ctx, Call{Op: OpGetDeployment, Resource: name, Idempotent: true}, func(ctx context.Context) error {
		var err error
		d, err = c.base.GetDeployment(ctx, name)
		return err
	})
	return d, err
}

func (c *Client) ListDeployments(ctx context.Context) ([]*engine.Deployment, error) {
	var ds []*engine.Deployment
	err := c.invoke(ctx, Call{Op: OpListDeployments, Idempotent: true}, func(ctx context.Context) error {
		var err error
		ds, err = c.base.ListDeployments(ctx)
		return err
	})
	return ds, err
}

func (c *Client) DeleteDeployment(ctx context.Context, name string, force bool) error {
	return c.invoke(ctx, Call{Op: OpDeleteDeployment, Resource: name}, func(ctx context.Context) error {
		return c.base.DeleteDeployment(ctx, name, force)
	})
}

func (c *Client) Query(ctx context.Context, name, method string, input map[string]any) (any, error) {
	var out any
	call := Call{Op: queryOp(method), Resource: name, Idempotent: idempotentMethods[method]}
	err := c.invoke(ctx, call, func(ctx context.Context) error {
		var err error
		out, err = c.base.Query(ctx, name, method, input)
		return err
	})
	return out, err
}

// StreamQuery is never retried; events already handed to fn cannot be taken back.
func (c *Client) StreamQuery(ctx context.Context, name, method string, input map[string]any, fn engine.EventHandler) error {
	call := Call{Op: queryOp(method), Resource: name}
	return c.invoke(ctx, call, func(ctx context.Context) error {
		return c.base.StreamQuery(ctx, name, method, input, func(ev json.RawMessage) error {
			for _, o := range c.observers {
				o(call)
			}
			return fn(ev)
		})
	})
}

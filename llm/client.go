package llm

import (
	"context"
	"fmt"
	"sync"
)

// CompleteFunc is the shape of a completion call, used by middleware.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Middleware wraps a completion call with cross-cutting behavior
// (logging, accounting, caching).
type Middleware func(next CompleteFunc) CompleteFunc

// Client routes requests to registered provider adapters. Construct one
// explicitly and pass it where it is needed; there is no package-level
// default instance.
type Client struct {
	mu              sync.RWMutex
	adapters        map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAdapter registers an adapter under its own name. The first adapter
// registered becomes the default provider unless one is set explicitly.
func WithAdapter(adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.register(adapter)
	}
}

// WithDefaultProvider sets the provider used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends middleware applied around Complete, outermost first.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{adapters: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds an adapter after construction.
func (c *Client) Register(adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(adapter)
}

func (c *Client) register(adapter ProviderAdapter) {
	c.adapters[adapter.Name()] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = adapter.Name()
	}
}

// resolve picks the adapter for a request: the request's provider if named,
// otherwise the provider inferred from the model catalog, otherwise the
// default.
func (c *Client) resolve(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" && req.Model != "" {
		if info := Resolve(req.Model); info != nil {
			if _, ok := c.adapters[info.Provider]; ok {
				name = info.Provider
			}
		}
	}
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, &ConfigError{Message: "no provider registered"}
	}
	adapter, ok := c.adapters[name]
	if !ok {
		return nil, &ConfigError{Message: fmt.Sprintf("unknown provider %q", name)}
	}
	return adapter, nil
}

// Complete sends a blocking request through the middleware chain to the
// resolved adapter.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	call := adapter.Complete
	c.mu.RLock()
	mws := c.middleware
	c.mu.RUnlock()
	for i := len(mws) - 1; i >= 0; i-- {
		call = mws[i](call)
	}
	return call(ctx, req)
}

// Stream sends a streaming request to the resolved adapter. Middleware does
// not apply to streams.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	adapter, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	return adapter.Stream(ctx, req)
}

// Close closes every registered adapter that holds resources.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, adapter := range c.adapters {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

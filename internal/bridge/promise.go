package bridge

import (
	"context"
	"fmt"
	"sync"
)

// Rejection is the error a promise settles with when the native side fails.
type Rejection struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// ErrorCode returns the rejection code.
func (r *Rejection) ErrorCode() string { return r.Code }

// Detail returns the rejection message without the code.
func (r *Rejection) Detail() string { return r.Message }

// Map is the generic key-value record handed back to the host.
type Map map[string]any

// Bool returns the boolean stored under key; missing or non-bool values read as false.
func (m Map) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// Promise is a single-settlement handle for an asynchronous native call.
// Only the first Resolve or Reject takes effect.
type Promise struct {
	once      sync.Once
	done      chan struct{}
	value     Map
	rejection *Rejection
}

// NewPromise returns an unsettled promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve settles the promise with value. It reports whether this call settled it.
func (p *Promise) Resolve(value Map) bool {
	settled := false
	p.once.Do(func() {
		p.value = value
		settled = true
		close(p.done)
	})
	return settled
}

// Reject settles the promise with a rejection. It reports whether this call settled it.
func (p *Promise) Reject(code, message string) bool {
	settled := false
	p.once.Do(func() {
		p.rejection = &Rejection{Code: code, Message: message}
		settled = true
		close(p.done)
	})
	return settled
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the promise settles or ctx ends. Giving up on ctx does
// not stop the work that will eventually settle the promise.
func (p *Promise) Await(ctx context.Context) (Map, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.rejection != nil {
		return nil, p.rejection
	}
	return p.value, nil
}

package core

import (
	"context"
	"net/http"
)

// Transport performs the actual network call for a Request (spec.md
// §6). Each business line is wired to exactly one Transport (plus an
// optional mock Transport); the default implementation is
// transport.RetryableHTTPTransport, built on hashicorp/go-retryablehttp
// with its internal retry disabled — retry policy belongs to the
// Manager, not the Transport.
type Transport interface {
	// Do issues req and returns the raw *http.Response together with
	// its fully-read body. Errors are returned as plain Go errors; the
	// Manager hands them to the business's Parser, whose HandleError
	// (core.JSONParser by default) distinguishes cancellation/timeout
	// from other transport failures via errors.Is against
	// context.Canceled/DeadlineExceeded.
	Do(ctx context.Context, req *http.Request) (httpResp *http.Response, body []byte, err error)
}

// Interceptor is the per-business hook set invoked at each lifecycle
// step of the Manager's request loop (spec.md §4.5 steps A-G, §6).
// Every method is synchronous from the Manager's point of view; an
// implementation that needs to do async work should not block the
// call longer than it is willing to delay the request.
type Interceptor interface {
	// InitialData runs once during business registration, before the
	// transport is constructed (spec.md §4.4).
	InitialData(ctx context.Context) error

	// SetupTransport is the post-construction hook handed the business's
	// transport (and, if configured, its mock transport) (spec.md §4.4).
	SetupTransport(t Transport, isMock bool)

	// AllowRequestPassWhenSuspend decides whether req may bypass an
	// active suspend gate (spec.md §4.5 step B).
	AllowRequestPassWhenSuspend(req *Request) bool

	// OnRequest fires at the start of step C, once per attempt.
	OnRequest(req *Request)

	// OnAddToPromise fires once, right after a request is first
	// enlisted in the promise store.
	OnAddToPromise(req *Request)

	// OnLoadCache fires on a cache hit during step C, before the
	// network call — the hit does not short-circuit the transport.
	OnLoadCache(req *Request, data map[string]interface{})

	// OnResponse fires once a Response is available, before the retry
	// decision (spec.md §4.5 step F).
	OnResponse(req *Request, resp *Response)

	// NeedRetry is consulted only when retry.Type permits another
	// attempt; returning true schedules a retry.
	NeedRetry(req *Request, resp *Response) bool

	// OnSaveCache fires immediately before cache.save (step G.1).
	OnSaveCache(req *Request, data map[string]interface{})

	// OnRemoveFromPromise fires immediately after the promise record
	// is deleted (step G.2).
	OnRemoveFromPromise(req *Request)

	// OnCleanData fires once per business when Manager.CleanData runs.
	OnCleanData()
}

// Parser turns a raw transport outcome into the Response a caller's
// completion slot receives (spec.md §4.5 step E, §6).
type Parser interface {
	// ParseResponse handles the transport-success path.
	ParseResponse(ctx context.Context, req *Request, httpResp *http.Response, body []byte) (*Response, error)
	// HandleError handles the transport-failure, cancellation, and
	// parse-exception paths, producing a Response carrying an Error.
	HandleError(ctx context.Context, req *Request, httpResp *http.Response, cause error) *Response
}

// Converter maps decoded response data onto a caller-supplied model
// type, invoked by a Parser after body decoding (spec.md §3).
type Converter func(data map[string]interface{}) (interface{}, error)

// NoopInterceptor implements Interceptor with library defaults: never
// suspends-bypass, never asks for a retry (NeedRetry returns false, so a
// business using it never retries, whatever the request's retry.Type),
// and no side effects on any hook.
// Business lines that need only a subset of hooks can embed this and
// override the rest.
type NoopInterceptor struct{}

func (NoopInterceptor) InitialData(context.Context) error                       { return nil }
func (NoopInterceptor) SetupTransport(Transport, bool)                         {}
func (NoopInterceptor) AllowRequestPassWhenSuspend(*Request) bool              { return false }
func (NoopInterceptor) OnRequest(*Request)                                     {}
func (NoopInterceptor) OnAddToPromise(*Request)                                {}
func (NoopInterceptor) OnLoadCache(*Request, map[string]interface{})           {}
func (NoopInterceptor) OnResponse(*Request, *Response)                        {}
func (NoopInterceptor) NeedRetry(*Request, *Response) bool                    { return false }
func (NoopInterceptor) OnSaveCache(*Request, map[string]interface{})          {}
func (NoopInterceptor) OnRemoveFromPromise(*Request)                          {}
func (NoopInterceptor) OnCleanData()                                          {}

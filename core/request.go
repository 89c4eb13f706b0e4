package core

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Method is an HTTP verb accepted by a Request.
type Method string

const (
	MethodGET    Method = "GET"
	MethodPOST   Method = "POST"
	MethodDELETE Method = "DELETE"
	MethodPUT    Method = "PUT"
	MethodPATCH  Method = "PATCH"
)

// RetryType selects how a Request's retry loop terminates (spec.md §3).
type RetryType int

const (
	RetryNever RetryType = iota
	RetryLimit
	RetryForever
)

// RetryConfig is the mutable retry policy slice of a Request. Count is
// the only field the Manager mutates, and only ever upward.
type RetryConfig struct {
	Type       RetryType
	Max        int
	IntervalMs int
	Count      int
}

// CacheConfig is the cache-participation slice of a Request. MD5Key is
// set exactly once, immediately before the first transport send.
type CacheConfig struct {
	Enable       bool
	UseLRU       bool
	IgnoreOnce   bool
	Duration     *time.Duration // nil = infinite
	MD5Key       string
	LastResponse *Response
}

// PromiseConfig is the durability-enlistment slice of a Request. Key is
// set exactly once, when the request is first enlisted.
type PromiseConfig struct {
	Enable bool
	Key    string
}

// MockConfig selects a debug-build mock transport and path rewrite.
type MockConfig struct {
	Enable     bool
	ProjectID  int
	OriginPath string
}

// EffectivePath returns "/mock/{projectId}{originPath}" per spec.md §3.
func (m MockConfig) EffectivePath() string {
	if !m.Enable {
		return ""
	}
	return "/mock/" + itoa(m.ProjectID) + m.OriginPath
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Request describes one HTTP call plus its retry/cache/promise/mock
// configuration and a single-fire completion slot (spec.md §3). It is
// immutable after submission except for Retry.Count, Cache.MD5Key, and
// Promise.Key, each of which is written at most once or monotonically.
type Request struct {
	BusinessIdentifier string
	Method             Method
	APIPath            string
	PathParam          string
	QueryParams        map[string]interface{}
	Data               Body
	Headers            map[string]string
	ContentType        string
	ResponseType       string
	ConnectTimeout      time.Duration
	SendTimeout         time.Duration
	RecvTimeout         time.Duration
	CancelToken         *CancelToken
	Converter           Converter
	ExtraTag            string

	Retry   RetryConfig
	Cache   CacheConfig
	Promise PromiseConfig
	Mock    MockConfig

	RequestStartTime time.Time

	mu         sync.Mutex
	completion chan *Response
	completed  bool
}

// NewRequest constructs a Request with library defaults (JSON content
// and response type, retry disabled). Callers mutate the returned
// value's fields before calling Manager.Send; GET/POST/Delete below are
// thin convenience wrappers.
func NewRequest(businessID string, method Method, apiPath string) *Request {
	return &Request{
		BusinessIdentifier: businessID,
		Method:             method,
		APIPath:            apiPath,
		QueryParams:        map[string]interface{}{},
		Headers:            map[string]string{},
		ContentType:        "application/json",
		ResponseType:       "application/json",
		Retry:              RetryConfig{Type: RetryNever},
		completion:         make(chan *Response, 1),
	}
}

// GET builds a GET Request.
func GET(businessID, apiPath string) *Request {
	return NewRequest(businessID, MethodGET, apiPath)
}

// POST builds a POST Request carrying body.
func POST(businessID, apiPath string, body Body) *Request {
	r := NewRequest(businessID, MethodPOST, apiPath)
	r.Data = body
	return r
}

// Delete builds a DELETE Request.
func Delete(businessID, apiPath string) *Request {
	return NewRequest(businessID, MethodDELETE, apiPath)
}

// EffectivePath returns APIPath + PathParam (spec.md §3).
func (r *Request) EffectivePath() string {
	return r.APIPath + r.PathParam
}

// EnsureMD5Key computes and stores Cache.MD5Key on first call; later
// calls are no-ops, matching spec.md §3's "set exactly once" invariant.
// The hash covers businessIdentifier, method, effective path,
// query params, and the JSON-encoded body when the body is a JSON
// mapping.
func (r *Request) EnsureMD5Key() (string, error) {
	if r.Cache.MD5Key != "" {
		return r.Cache.MD5Key, nil
	}

	h := md5.New()
	h.Write([]byte(r.BusinessIdentifier))
	h.Write([]byte(string(r.Method)))
	h.Write([]byte(r.EffectivePath()))

	qp, err := canonicalJSON(r.QueryParams)
	if err != nil {
		return "", NewOpError("request.EnsureMD5Key", r.BusinessIdentifier, err)
	}
	h.Write(qp)

	if r.Data.Kind() == BodyKindJSON {
		dp, err := canonicalJSON(r.Data.JSON())
		if err != nil {
			return "", NewOpError("request.EnsureMD5Key", r.BusinessIdentifier, err)
		}
		h.Write(dp)
	}

	r.Cache.MD5Key = hex.EncodeToString(h.Sum(nil))
	return r.Cache.MD5Key, nil
}

// canonicalJSON encodes v with sorted keys so the MD5 key is stable
// regardless of map iteration order.
func canonicalJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		v = map[string]interface{}{}
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 64)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v[k])
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return ordered, nil
}

// Complete writes resp into the completion slot exactly once. A second
// call is a programmer error: it returns ErrAlreadyCompleted instead of
// panicking, so production builds degrade safely while tests can assert
// on it (spec.md §7: "completion-slot double-writes are programmer
// errors... the framework guarantees the slot is written at most once").
func (r *Request) Complete(resp *Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return ErrAlreadyCompleted
	}
	r.completed = true
	r.completion <- resp
	close(r.completion)
	return nil
}

// Done returns the channel that receives the single Response written
// by Complete.
func (r *Request) Done() <-chan *Response {
	return r.completion
}

// CancelToken is a shared cancellation handle; multiple Requests may
// share one for batch cancellation (spec.md §3).
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
	ch        chan struct{}
}

// NewCancelToken returns a live (not cancelled) token.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel marks the token cancelled and releases every Request waiting
// on it. Idempotent.
func (c *CancelToken) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.ch)
}

// IsCancelled reports the token's state without blocking.
func (c *CancelToken) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Done returns a channel closed when Cancel is called.
func (c *CancelToken) Done() <-chan struct{} {
	return c.ch
}

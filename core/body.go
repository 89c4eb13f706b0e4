package core

import (
	"encoding/json"
	"io"
)

// BodyKind discriminates the shape carried by a Body.
type BodyKind int

const (
	// BodyKindJSON carries a JSON-mapping payload (map[string]interface{}).
	BodyKindJSON BodyKind = iota
	// BodyKindText carries a raw string payload.
	BodyKindText
	// BodyKindStream carries an opaque streaming payload (e.g. multipart).
	BodyKindStream
)

// Body is the tagged variant described by spec.md §3/§9: a Request's
// data is one of a JSON mapping, a raw string, or an opaque stream.
// Only BodyKindJSON and BodyKindText are Serializable; a BodyKindStream
// body cannot be hashed into a cache key or persisted by the promise
// store.
type Body struct {
	kind   BodyKind
	json   map[string]interface{}
	text   string
	stream io.Reader
}

// NewJSONBody wraps a JSON mapping body.
func NewJSONBody(m map[string]interface{}) Body {
	if m == nil {
		m = map[string]interface{}{}
	}
	return Body{kind: BodyKindJSON, json: m}
}

// NewTextBody wraps a raw string body.
func NewTextBody(s string) Body {
	return Body{kind: BodyKindText, text: s}
}

// NewStreamBody wraps an opaque, non-serializable body (e.g. multipart
// form data). Promise enlistment of a request carrying a stream body
// fails in promise.Store.Save with ErrNotSerializable; Manager.Send does
// not reject such a request; the Manager logs the failed save and still
// sends it.
func NewStreamBody(r io.Reader) Body {
	return Body{kind: BodyKindStream, stream: r}
}

// Kind reports which shape this Body carries.
func (b Body) Kind() BodyKind { return b.kind }

// IsZero reports whether the body was never set (no data on the request).
func (b Body) IsZero() bool {
	return b.kind == BodyKindJSON && b.json == nil && b.text == "" && b.stream == nil
}

// JSON returns the JSON mapping payload. Only valid when Kind() == BodyKindJSON.
func (b Body) JSON() map[string]interface{} { return b.json }

// Text returns the raw string payload. Only valid when Kind() == BodyKindText.
func (b Body) Text() string { return b.text }

// Stream returns the opaque reader. Only valid when Kind() == BodyKindStream.
func (b Body) Stream() io.Reader { return b.stream }

// Serializable reports whether this body can be encoded and persisted by
// the promise store (spec.md §3, §4.3). Of the serializable kinds, only
// a JSON body contributes to the MD5 cache key (Request.EnsureMD5Key).
func (b Body) Serializable() bool {
	return b.kind == BodyKindJSON || b.kind == BodyKindText
}

// Encode renders a serializable body to the bytes sent on the wire. A
// JSON body is encoded with encoding/json (a zero Body encodes as
// "null"); a text body is returned as its raw bytes, not JSON-re-encoded,
// so it round-trips byte for byte. A stream body returns
// ErrNotSerializable.
func (b Body) Encode() ([]byte, error) {
	switch b.kind {
	case BodyKindJSON:
		return json.Marshal(b.json)
	case BodyKindText:
		return []byte(b.text), nil
	default:
		return nil, ErrNotSerializable
	}
}

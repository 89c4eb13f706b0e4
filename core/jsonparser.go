package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// JSONParser is the default Parser (spec.md §4.6, §6): it decodes a
// JSON object body, treats any HTTP status >= 400 as a
// ServerBusinessError keyed off the status code, and applies a
// Request's Converter when present.
type JSONParser struct{}

func (JSONParser) ParseResponse(_ context.Context, req *Request, httpResp *http.Response, body []byte) (*Response, error) {
	resp := &Response{Headers: map[string][]string{}}
	if httpResp != nil {
		resp.Headers = httpResp.Header
	}

	if httpResp != nil && httpResp.StatusCode >= 400 {
		resp.Error = &Error{
			Code:          httpResp.StatusCode,
			OriginMessage: string(body),
			Message:       fmt.Sprintf("server returned status %d", httpResp.StatusCode),
		}
		return resp, nil
	}

	if len(body) == 0 {
		return resp, nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		resp.Error = &Error{
			Code:          ErrCodeParse,
			OriginMessage: err.Error(),
			Message:       "failed to parse response body as JSON",
			OriginError:   err,
		}
		return resp, nil
	}
	resp.Data = data

	if req.Converter != nil {
		model, err := req.Converter(data)
		if err != nil {
			resp.Error = &Error{
				Code:          ErrCodeParse,
				OriginMessage: err.Error(),
				Message:       "failed to convert response data",
				OriginError:   err,
			}
			return resp, nil
		}
		resp.Model = model
	}

	return resp, nil
}

// HandleError turns a transport-level or context error into the Error
// shape a caller's completion slot expects, distinguishing cancellation
// and deadline exceeded from generic transport failures (spec.md §4.5
// step E, §7).
func (JSONParser) HandleError(_ context.Context, _ *Request, httpResp *http.Response, cause error) *Response {
	resp := &Response{Headers: map[string][]string{}}
	if httpResp != nil {
		resp.Headers = httpResp.Header
	}
	if cause == nil {
		return resp
	}

	switch {
	case errors.Is(cause, context.Canceled), errors.Is(cause, ErrCancelled):
		resp.Error = &Error{Code: ErrCodeCancelled, OriginMessage: cause.Error(), Message: "request cancelled", OriginError: cause}
	case errors.Is(cause, context.DeadlineExceeded):
		resp.Error = &Error{Code: ErrCodeTimeout, OriginMessage: cause.Error(), Message: "request timed out", OriginError: cause}
	case errors.Is(cause, io.EOF):
		resp.Error = &Error{Code: ErrCodeTransport, OriginMessage: cause.Error(), Message: "connection closed unexpectedly", OriginError: cause}
	default:
		resp.Error = &Error{Code: ErrCodeTransport, OriginMessage: cause.Error(), Message: "transport failure", OriginError: cause}
	}
	return resp
}

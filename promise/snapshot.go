package promise

import (
	"encoding/json"

	"github.com/ltyfantasy/goapn/core"
)

// Snapshot is the JSON-serializable projection of a core.Request used
// for promise persistence (spec.md §4.3). Only the fields spec.md names
// as persisted are present; RequestStartTime, retry.count, and the
// cancel token are runtime state and are deliberately not carried.
type Snapshot struct {
	BusinessIdentifier string                 `json:"businessIdentifier"`
	Method             string                 `json:"method"`
	APIPath            string                 `json:"apiPath"`
	PathParam          string                 `json:"pathParam"`
	QueryParams        map[string]interface{} `json:"queryParams"`
	ContentType        string                 `json:"contentType"`
	ResponseType       string                 `json:"responseType"`
	Headers            map[string]string      `json:"headers"`
	SendTimeoutMs       int64                  `json:"sendTimeoutMs"`
	RecvTimeoutMs       int64                  `json:"recvTimeoutMs"`

	BodyKind core.BodyKind `json:"bodyKind"`
	BodyJSON map[string]interface{} `json:"bodyJson,omitempty"`
	BodyText string                  `json:"bodyText,omitempty"`

	RetryType       core.RetryType `json:"retryType"`
	RetryMax        int            `json:"retryMax"`
	RetryIntervalMs int            `json:"retryIntervalMs"`

	CacheEnable     bool  `json:"cacheEnable"`
	CacheUseLRU     bool  `json:"cacheUseLRU"`
	CacheIgnoreOnce bool  `json:"cacheIgnoreOnce"`
	CacheDurationS  *int64 `json:"cacheDurationS,omitempty"`

	PromiseKey string `json:"promiseKey"`

	MockEnable     bool   `json:"mockEnable"`
	MockProjectID  int    `json:"mockProjectId"`
	MockOriginPath string `json:"mockOriginPath"`

	ExtraTag string `json:"extraTag"`
}

// ToSnapshot projects a Request into its persistable form. It returns
// core.ErrNotSerializable if the body is a stream, matching spec.md
// §4.3: "other body shapes are not persistable and promise-enabling
// them is an error".
func ToSnapshot(r *core.Request) (*Snapshot, error) {
	if !r.Data.Serializable() && !r.Data.IsZero() {
		return nil, core.NewOpError("promise.ToSnapshot", r.BusinessIdentifier, core.ErrNotSerializable)
	}

	s := &Snapshot{
		BusinessIdentifier: r.BusinessIdentifier,
		Method:             string(r.Method),
		APIPath:            r.APIPath,
		PathParam:          r.PathParam,
		QueryParams:        r.QueryParams,
		ContentType:        r.ContentType,
		ResponseType:       r.ResponseType,
		Headers:            r.Headers,
		SendTimeoutMs:      r.SendTimeout.Milliseconds(),
		RecvTimeoutMs:      r.RecvTimeout.Milliseconds(),
		BodyKind:           r.Data.Kind(),
		RetryType:          r.Retry.Type,
		RetryMax:           r.Retry.Max,
		RetryIntervalMs:    r.Retry.IntervalMs,
		CacheEnable:        r.Cache.Enable,
		CacheUseLRU:        r.Cache.UseLRU,
		CacheIgnoreOnce:    r.Cache.IgnoreOnce,
		PromiseKey:         r.Promise.Key,
		MockEnable:         r.Mock.Enable,
		MockProjectID:      r.Mock.ProjectID,
		MockOriginPath:     r.Mock.OriginPath,
		ExtraTag:           r.ExtraTag,
	}

	switch r.Data.Kind() {
	case core.BodyKindJSON:
		s.BodyJSON = r.Data.JSON()
	case core.BodyKindText:
		s.BodyText = r.Data.Text()
	}

	if r.Cache.Duration != nil {
		sec := int64(r.Cache.Duration.Seconds())
		s.CacheDurationS = &sec
	}

	return s, nil
}

// ToRequest reconstructs a Request "as if freshly created" (spec.md
// §4.3): runtime state (completion slot, RequestStartTime, retry.count,
// cancel token) is fresh, while PromiseKey and ExtraTag are preserved.
func (s *Snapshot) ToRequest() *core.Request {
	r := core.NewRequest(s.BusinessIdentifier, core.Method(s.Method), s.APIPath)
	r.PathParam = s.PathParam
	r.QueryParams = s.QueryParams
	r.ContentType = s.ContentType
	r.ResponseType = s.ResponseType
	r.Headers = s.Headers
	r.SendTimeout = msToDuration(s.SendTimeoutMs)
	r.RecvTimeout = msToDuration(s.RecvTimeoutMs)
	r.ExtraTag = s.ExtraTag

	switch s.BodyKind {
	case core.BodyKindJSON:
		r.Data = core.NewJSONBody(s.BodyJSON)
	case core.BodyKindText:
		r.Data = core.NewTextBody(s.BodyText)
	}

	r.Retry = core.RetryConfig{Type: s.RetryType, Max: s.RetryMax, IntervalMs: s.RetryIntervalMs}
	r.Cache = core.CacheConfig{Enable: s.CacheEnable, UseLRU: s.CacheUseLRU, IgnoreOnce: s.CacheIgnoreOnce}
	if s.CacheDurationS != nil {
		d := durationFromSeconds(*s.CacheDurationS)
		r.Cache.Duration = &d
	}
	r.Promise = core.PromiseConfig{Enable: true, Key: s.PromiseKey}
	r.Mock = core.MockConfig{Enable: s.MockEnable, ProjectID: s.MockProjectID, OriginPath: s.MockOriginPath}

	return r
}

// Encode/Decode round-trip a Snapshot to/from its DB TEXT column.
func (s *Snapshot) Encode() ([]byte, error) { return json.Marshal(s) }

func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

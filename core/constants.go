package core

import "time"

// Environment variable names read by config.Load (grounded on gomind's
// core/config.go struct-tag + env-var convention).
const (
	EnvCacheDBPath   = "GOAPN_CACHE_DB_PATH"
	EnvPromiseDBPath = "GOAPN_PROMISE_DB_PATH"
	EnvRedisAddr     = "GOAPN_REDIS_ADDR"
	EnvLogLevel      = "GOAPN_LOG_LEVEL"
)

// Library-wide defaults used when a business or request does not
// override them.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 15 * time.Second
	DefaultRecvTimeout    = 15 * time.Second
	DefaultRetryInterval  = 500 * time.Millisecond
	DefaultLRUCapacity    = 100
	DefaultCacheDBPath    = "goapn_cache.db"
	DefaultPromiseDBPath  = "goapn_promise.db"
)

package promise

import "time"

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func durationFromSeconds(sec int64) time.Duration {
	return time.Duration(sec) * time.Second
}

package engine

import "time"

// frameMicros computes the wall-clock duration one buffer of bytes
// should occupy at sampleRate with the given frame size, per spec.md
// §4.5/§4.6's frame_us formula.
func frameMicros(bytes, frameSizeBytes int, sampleRate uint32) int64 {
	if frameSizeBytes <= 0 || sampleRate == 0 {
		return 0
	}
	return int64(bytes) * 1_000_000 / int64(frameSizeBytes) / int64(sampleRate)
}

// epollTimeoutMillis derives the epoll_wait timeout from the remaining
// pacing budget, clamped to [1, frameUs/1000] as spec.md §4.5 directs.
func epollTimeoutMillis(sleepUs, frameUs int64) int {
	lo := int64(1)
	hi := frameUs / 1000
	if hi < lo {
		hi = lo
	}
	v := sleepUs / 1000
	if v < lo {
		return int(lo)
	}
	if v > hi {
		return int(hi)
	}
	return int(v)
}

// pace sleeps for min(sleepUs, frameUs) microseconds if sleepUs is
// positive, and reports the duration actually slept. A non-positive
// sleepUs means the call already used up (or exceeded) its frame
// budget, so no sleep happens — this models an under-filled ring
// buffer right after a standby exit, per spec.md §4.5 step 6.
func pace(sleepFn func(time.Duration), sleepUs, frameUs int64) time.Duration {
	if sleepUs <= 0 {
		return 0
	}
	if sleepUs > frameUs {
		sleepUs = frameUs
	}
	d := time.Duration(sleepUs) * time.Microsecond
	sleepFn(d)
	return d
}

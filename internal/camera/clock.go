package camera

import "time"

// SystemClock implements Clock against the real wall clock and
// time.AfterFunc, for anything outside of tests.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().UnixNano() }

func (SystemClock) AfterFunc(d int64, f func()) CancelFunc {
	t := time.AfterFunc(time.Duration(d), f)
	return func() { t.Stop() }
}

package recording

import (
	"time"

	"github.com/meridian-video/camera-gateway/internal/camera"
)

// RealClock is the wall-clock implementation of camera.Clock, used by the
// Recording Manager to schedule duration-bounded sessions.
type RealClock struct{}

func (RealClock) Now() int64 { return time.Now().UnixNano() }

func (RealClock) AfterFunc(d int64, f func()) camera.CancelFunc {
	timer := time.AfterFunc(time.Duration(d), f)
	return func() { timer.Stop() }
}

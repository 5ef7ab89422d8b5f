package camera

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// DeviceEvent is what the Device Monitor (C4) emits for OS-level presence
// changes, independent of transport (fsnotify vs udev).
type DeviceEvent struct {
	Kind       DeviceEventKind
	DevicePath string
	Attributes map[string]string
}

// DeviceEventKind enumerates the device presence transitions in §4.10.
type DeviceEventKind string

const (
	DeviceAdded   DeviceEventKind = "added"
	DeviceRemoved DeviceEventKind = "removed"
	DeviceError   DeviceEventKind = "error"
)

// DeviceSource is the re-architected abstraction named in §9, replacing the
// source language's ambient device-discovery singleton: an explicit
// interface the registry depends on, satisfiable by fsnotify, udev, or a
// test fake.
type DeviceSource interface {
	// Events returns a channel of device presence events. Closed on Stop.
	Events() <-chan DeviceEvent
	// Start begins observing the OS for device changes.
	Start(ctx context.Context) error
	// Stop halts observation and closes the Events channel.
	Stop() error
	// Reconcile returns every device currently present, for level-triggered
	// recovery after a monitor restart.
	Reconcile() ([]string, error)
}

// Clock is the re-architected abstraction for scheduled/cancellable timers
// (duration-bounded recordings, debounce windows), satisfiable by the real
// wall clock or a fake for deterministic tests.
type Clock interface {
	Now() (nowUnixNano int64)
	AfterFunc(d int64, f func()) CancelFunc
}

// CancelFunc cancels a scheduled Clock callback. Calling it after the
// callback has already fired is a no-op.
type CancelFunc func()

// CapabilityProber probes a device's V4L2 capabilities. Grounded on
// v4l2-ctl text output parsing; the real implementation shells out, test
// fakes return canned capabilities.
type CapabilityProber interface {
	Probe(ctx context.Context, devicePath string) (Capabilities, error)
}

// RealCapabilityProber shells out to v4l2-ctl and parses its text output.
type RealCapabilityProber struct{}

func (p *RealCapabilityProber) Probe(ctx context.Context, devicePath string) (Capabilities, error) {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", devicePath, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return Capabilities{}, err
	}
	return parseV4L2Formats(string(output)), nil
}

// parseV4L2Formats extracts pixel formats, resolutions, and frame rates
// from `v4l2-ctl --list-formats-ext` text output.
func parseV4L2Formats(output string) Capabilities {
	caps := Capabilities{}
	seenFormat := map[string]bool{}
	seenRes := map[string]bool{}
	seenFPS := map[string]bool{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[") && strings.Contains(line, "'"):
			if f := extractQuoted(line); f != "" && !seenFormat[f] {
				seenFormat[f] = true
				caps.Formats = append(caps.Formats, f)
			}
		case strings.HasPrefix(line, "Size:"):
			if r := extractValue(line); r != "" && !seenRes[r] {
				seenRes[r] = true
				caps.Resolutions = append(caps.Resolutions, strings.TrimPrefix(r, "Discrete "))
			}
		case strings.HasPrefix(line, "Interval:"):
			if fps := extractFPS(line); fps != "" && !seenFPS[fps] {
				seenFPS[fps] = true
				caps.FPS = append(caps.FPS, fps)
			}
		}
	}
	return caps
}

func extractValue(line string) string {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractQuoted(line string) string {
	start := strings.Index(line, "'")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "'")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}

func extractFPS(line string) string {
	idx := strings.Index(line, "(")
	if idx == -1 {
		return ""
	}
	rest := line[idx+1:]
	end := strings.Index(rest, " fps)")
	if end == -1 {
		return ""
	}
	return rest[:end] + "fps"
}

// fileExists reports whether path can be stat'ed. The monitors' Reconcile
// methods list /dev directly and do not call it.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Package camera implements the Device Monitor (C4), Camera Registry (C6),
// and Stream URL Builder (C7): it watches the host for local video device
// presence, merges that presence with MediaMTX path readiness into a single
// per-camera status, and derives the RTSP/HLS/WebRTC URLs a client uses to
// consume a camera's stream.
//
// DeviceSource is the re-architected seam named in §9: FsnotifyMonitor and
// UdevMonitor both satisfy it, and either can be swapped for a test fake.
// Registry is the single writer of camera state; List and Get return
// copy-on-read snapshots so callers can't mutate state out from under the
// registry. CapabilityDispatcher bounds concurrent v4l2-ctl probes behind a
// worker pool so a burst of device-added events can't fork unbounded
// subprocesses.
package camera

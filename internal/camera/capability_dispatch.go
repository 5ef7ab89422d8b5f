package camera

import (
	"context"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
)

// CapabilityDispatcher probes capabilities for newly-connected devices
// through a BoundedWorkerPool, so a burst of device-added events can't spawn
// unbounded concurrent v4l2-ctl subprocesses.
type CapabilityDispatcher struct {
	pool     BoundedWorkerPool
	prober   CapabilityProber
	registry *Registry
	logger   *logging.Logger
}

// NewCapabilityDispatcher wires a prober and registry behind a bounded pool.
// maxWorkers and perProbeTimeout follow the spec default of bounding
// concurrent external-process probes (default 4 workers, 2s per probe).
func NewCapabilityDispatcher(registry *Registry, prober CapabilityProber, maxWorkers int, perProbeTimeout time.Duration, logger *logging.Logger) *CapabilityDispatcher {
	if logger == nil {
		logger = logging.GetLogger("capability-dispatch")
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if perProbeTimeout <= 0 {
		perProbeTimeout = 2 * time.Second
	}
	return &CapabilityDispatcher{
		pool:     NewBoundedWorkerPool(maxWorkers, perProbeTimeout, logger),
		prober:   prober,
		registry: registry,
		logger:   logger,
	}
}

func (d *CapabilityDispatcher) Start(ctx context.Context) error { return d.pool.Start(ctx) }
func (d *CapabilityDispatcher) Stop(ctx context.Context) error  { return d.pool.Stop(ctx) }
func (d *CapabilityDispatcher) Stats() WorkerPoolStats          { return d.pool.GetStats() }

// ProbeAsync submits a capability probe for a device path, updating the
// registry's camera record if the probe succeeds. Submission failures (pool
// stopped, context cancelled) are logged and swallowed: a missed probe just
// leaves capabilities empty until the next device event retries it.
func (d *CapabilityDispatcher) ProbeAsync(ctx context.Context, devicePath string) {
	err := d.pool.Submit(ctx, func(taskCtx context.Context) {
		caps, err := d.prober.Probe(taskCtx, devicePath)
		if err != nil {
			d.logger.WithFields(logging.Fields{
				"device_path": devicePath,
				"error":       err.Error(),
			}).Debug("capability probe failed")
			return
		}
		d.registry.SetCapabilities(devicePath, caps)
	})
	if err != nil {
		d.logger.WithFields(logging.Fields{
			"device_path": devicePath,
			"error":       err.Error(),
		}).Warn("capability probe not dispatched")
	}
}

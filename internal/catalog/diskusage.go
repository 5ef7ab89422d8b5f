package catalog

import "github.com/shirou/gopsutil/v3/disk"

// DiskUsage reports the storage utilization of the filesystem backing dir,
// consumed by get_storage_info/get_metrics (C14) to classify each
// configured directory against storage.warn_percent/block_percent.
func DiskUsage(dir string) (usedPercent float64, err error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

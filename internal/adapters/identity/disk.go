package identity

// DiskUsage describes the filesystem holding a path.
type DiskUsage struct {
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"disk_usage_percent"`
	FreeGB      float64 `json:"free_disk_gb"`
}

const bytesPerGB = 1 << 30

func newDiskUsage(total, free uint64) DiskUsage {
	du := DiskUsage{TotalBytes: total, FreeBytes: free, FreeGB: float64(free) / bytesPerGB}
	if total > 0 {
		du.UsedPercent = float64(total-free) / float64(total) * 100
	}
	return du
}

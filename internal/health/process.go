package health

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is the additive "process" block attached to the /health
// response. It never affects the required top-level fields — a sampling
// failure just omits the block.
type ProcessStats struct {
	RSSBytes          uint64  `json:"rssBytes"`
	CPUPercent        float64 `json:"cpuPercent"`
	ActiveConnections int     `json:"activeConnections"`
}

// SampleProcess reads current RSS/CPU for this process. activeConnections is
// supplied by the caller (internal/session tracks it, health has no visibility
// into connection state).
func SampleProcess(activeConnections int) (ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, err
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ProcessStats{}, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		// CPU sampling is best-effort; RSS alone is still useful.
		cpuPercent = 0
	}

	return ProcessStats{
		RSSBytes:          memInfo.RSS,
		CPUPercent:        cpuPercent,
		ActiveConnections: activeConnections,
	}, nil
}

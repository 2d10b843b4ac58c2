package main

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// ============================================================================
// Self Monitoring
// ============================================================================

// HostDiagnostics is the payload of /api/health/detailed.
type HostDiagnostics struct {
	Hostname      string  `json:"hostname"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryUsedMB  uint64  `json:"memoryUsedMb"`
	DiskPercent   float64 `json:"diskPercent"`
	ProcessRSSMB  uint64  `json:"processRssMb"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"goVersion"`
}

// CollectDiagnostics gathers best-effort host metrics. Individual probe
// failures leave zero values rather than failing the endpoint.
func CollectDiagnostics(dataDir string) HostDiagnostics {
	d := HostDiagnostics{
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if info, err := host.Info(); err == nil {
		d.Hostname = info.Hostname
		d.Platform = info.Platform
		d.UptimeSeconds = info.Uptime
	}
	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		d.CPUPercent = round1(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		d.MemoryPercent = round1(vm.UsedPercent)
		d.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	if usage, err := disk.Usage(dataDir); err == nil {
		d.DiskPercent = round1(usage.UsedPercent)
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			d.ProcessRSSMB = memInfo.RSS / 1024 / 1024
		}
	}
	return d
}

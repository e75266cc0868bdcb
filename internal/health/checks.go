package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"watchtower/internal/metrics"
)

// ResourceThresholds are the warn/fail boundaries for the resource check,
// expressed as percentages.
type ResourceThresholds struct {
	CPUWarn float64 `yaml:"cpu_warn"`
	CPUFail float64 `yaml:"cpu_fail"`
	MemWarn float64 `yaml:"mem_warn"`
	MemFail float64 `yaml:"mem_fail"`
}

// DefaultResourceThresholds leave generous headroom before warning.
func DefaultResourceThresholds() ResourceThresholds {
	return ResourceThresholds{CPUWarn: 80, CPUFail: 95, MemWarn: 85, MemFail: 95}
}

// ResourceCheck probes CPU and memory usage against thresholds. A probe
/// error is a warn, not a fail: inability to read usage is an observability
// gap, not proof the process is unhealthy.
func ResourceCheck(thresholds ResourceThresholds) Checker {
	return func(ctx context.Context) ComponentCheck {
		start := time.Now()
		check := ComponentCheck{
			Component: "resources",
			Status:    CheckPass,
			Details:   make(map[string]any, 2),
		}

		cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil || len(cpuPercents) == 0 {
			check.Status = CheckWarn
			check.Message = "cpu usage unavailable"
		} else {
			usage := cpuPercents[0]
			check.Details["cpu_percent"] = usage
			applyThreshold(&check, "cpu", usage, thresholds.CPUWarn, thresholds.CPUFail)
		}

		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			if check.Status == CheckPass {
				check.Status = CheckWarn
				check.Message = "memory usage unavailable"
			}
		} else {
			check.Details["mem_percent"] = vm.UsedPercent
			applyThreshold(&check, "memory", vm.UsedPercent, thresholds.MemWarn, thresholds.MemFail)
		}

		check.Latency = time.Since(start)
		return check
	}
}

func applyThreshold(check *ComponentCheck, what string, usage, warn, fail float64) {
	switch {
	case fail > 0 && usage >= fail:
		check.Status = CheckFail
		check.Message = fmt.Sprintf("%s usage %.1f%% over fail threshold", what, usage)
	case warn > 0 && usage >= warn && check.Status != CheckFail:
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("%s usage %.1f%% over warn threshold", what, usage)
	}
}

// DirectoryCheck verifies that every required directory exists and is
// writable by creating and removing a probe file.
func DirectoryCheck(dirs ...string) Checker {
	return func(_ context.Context) ComponentCheck {
		start := time.Now()
		check := ComponentCheck{Component: "directories", Status: CheckPass}

		for _, dir := range dirs {
			if err := probeDir(dir); err != nil {
				check.Status = CheckFail
				check.Message = err.Error()
				break
			}
		}
		check.Latency = time.Since(start)
		return check
	}
}

func probeDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s inaccessible: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	return os.Remove(probe)
}

// RegistrySelfCheck verifies the metrics registry responds to a snapshot and
// its series count stays under maxSeries (guarding against label-cardinality
// leaks).
func RegistrySelfCheck(registry *metrics.Registry, maxSeries int) Checker {
	return func(_ context.Context) ComponentCheck {
		start := time.Now()
		check := ComponentCheck{Component: "metrics_registry", Status: CheckPass}

		count := registry.SeriesCount()
		check.Details = map[string]any{"series": count}
		if maxSeries > 0 && count > maxSeries {
			check.Status = CheckWarn
			check.Message = fmt.Sprintf("series count %d exceeds %d, possible label cardinality leak", count, maxSeries)
		}
		check.Latency = time.Since(start)
		return check
	}
}

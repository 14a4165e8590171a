package batch

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"ffbatch/config"
	"ffbatch/probe"
)

// CheckResources verifies the machine has headroom for an encode before
// the batch starts. outputDir is where the encoded files will land; ""
// checks the current directory's filesystem. Each probe failure is treated
// as "unknown" and skipped rather than blocking the batch.
func CheckResources(cfg *config.Config, outputDir string) error {
	if cfg.MaxCPUPercent > 0 {
		if pcts, err := cpu.Percent(time.Second, false); err == nil && len(pcts) > 0 {
			if pcts[0] > cfg.MaxCPUPercent {
				return fmt.Errorf("CPU already at %.0f%% (limit %.0f%%)",
					pcts[0], cfg.MaxCPUPercent)
			}
		}
	}

	if cfg.MinFreeMem > 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			if vm.Available < uint64(cfg.MinFreeMem) {
				return fmt.Errorf("only %s memory available, need %s",
					probe.FormatSize(int64(vm.Available)), probe.FormatSize(cfg.MinFreeMem))
			}
		}
	}

	if cfg.MinFreeDisk > 0 {
		dir := outputDir
		if dir == "" {
			dir = "."
		}
		if du, err := disk.Usage(dir); err == nil {
			if du.Free < uint64(cfg.MinFreeDisk) {
				return fmt.Errorf("only %s free on %s, need %s",
					probe.FormatSize(int64(du.Free)), dir, probe.FormatSize(cfg.MinFreeDisk))
			}
		}
	}

	return nil
}

package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const bytesPerMB = 1024 * 1024

// DetectCapacity sizes a pool from the host: logical CPUs, total memory and
// free disk on the filesystem holding path. Resources that cannot be read
// are left zero and reported in the joined error.
func DetectCapacity(ctx context.Context, path string) (Capacity, error) {
	var (
		c    Capacity
		errs []error
	)

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else {
		c.CPUCores = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		c.MemoryMB = int(vm.Total / bytesPerMB)
	}

	if path == "" {
		path = "/"
	}
	if du, err := disk.UsageWithContext(ctx, path); err != nil {
		errs = append(errs, fmt.Errorf("disk %s: %w", path, err))
	} else {
		c.DiskSpaceMB = int(du.Free / bytesPerMB)
	}

	return c, errors.Join(errs...)
}

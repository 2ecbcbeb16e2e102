package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/config"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
)

func newTestManager(capacity Capacity, threshold float64, cb Callbacks) (*Manager, *concerns.TransactionManager, *event.Bus) {
	tx := concerns.NewTransactionManager(nil)
	bus := event.NewBus(nil)
	return NewManager(Config{Capacity: capacity, WarningThreshold: threshold}, tx, bus, cb, nil), tx, bus
}

func TestRequestForPriority(t *testing.T) {
	tests := []struct {
		priority string
		want     Request
	}{
		{"high", Request{CPUCores: 4, MemoryMB: 4096, DiskSpaceMB: 10240, Priority: "high"}},
		{"critical", Request{CPUCores: 4, MemoryMB: 4096, DiskSpaceMB: 10240, Priority: "critical"}},
		{"normal", Request{CPUCores: 2, MemoryMB: 2048, DiskSpaceMB: 5120, Priority: "normal"}},
		{"", Request{CPUCores: 2, MemoryMB: 2048, DiskSpaceMB: 5120, Priority: "normal"}},
		{"low", Request{CPUCores: 1, MemoryMB: 1024, DiskSpaceMB: 2048, Priority: "low"}},
	}
	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestForPriority(tt.priority))
		})
	}
}

func TestAllocate_UsesPriorityDefaults(t *testing.T) {
	m, tx, bus := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 20480}, 0, Callbacks{})
	var allocated []event.ResourceEvent
	bus.Subscribe(event.TypeResourceAllocated, func(e event.Event) {
		allocated = append(allocated, e.(event.ResourceEvent))
	})

	alloc, err := m.Allocate(context.Background(), "wf-1", Request{Priority: "high"})
	require.NoError(t, err)
	assert.NotEmpty(t, alloc.ID)
	assert.Equal(t, "wf-1", alloc.WorkflowID)
	assert.Equal(t, 4, alloc.CPUCores)
	assert.Equal(t, 4096, alloc.MemoryMB)
	assert.Equal(t, 10240, alloc.DiskSpaceMB)
	assert.True(t, m.HasAllocation("wf-1"))

	u := m.Utilization()
	assert.InDelta(t, 0.5, u.CPU, 1e-9)
	assert.InDelta(t, 0.5, u.Memory, 1e-9)
	assert.InDelta(t, 0.5, u.Disk, 1e-9)
	assert.Equal(t, 1, u.Allocations)

	require.Len(t, allocated, 1)
	assert.Equal(t, alloc.ID, allocated[0].AllocationID)
	assert.Equal(t, int64(1), tx.Stats().Committed)
}

func TestAllocate_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 20480}, 0, Callbacks{})
	ctx := context.Background()

	first, err := m.Allocate(ctx, "wf-1", Request{})
	require.NoError(t, err)
	second, err := m.Allocate(ctx, "wf-1", Request{CPUCores: 6})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, m.Utilization().Used.CPUCores)
}

func TestAllocate_InsufficientCapacityRollsBack(t *testing.T) {
	m, tx, _ := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 1000}, 0, Callbacks{})

	_, err := m.Allocate(context.Background(), "wf-1", Request{CPUCores: 2, MemoryMB: 1024, DiskSpaceMB: 2000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientCapacity))
	assert.True(t, errors.Is(err, &errors.AllocationError{}))
	assert.True(t, errors.IsRetryable(err))

	var allocErr *errors.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, "disk", allocErr.Resource)
	assert.Equal(t, "wf-1", allocErr.WorkflowID)

	// cpu and memory were reserved then compensated
	u := m.Utilization()
	assert.Zero(t, u.Used.CPUCores)
	assert.Zero(t, u.Used.MemoryMB)
	assert.Zero(t, u.Used.DiskSpaceMB)
	assert.False(t, m.HasAllocation("wf-1"))
	assert.Equal(t, int64(1), tx.Stats().RolledBack)
}

func TestAllocate_NegativeRequest(t *testing.T) {
	m, _, _ := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 1000}, 0, Callbacks{})
	_, err := m.Allocate(context.Background(), "wf-1", Request{CPUCores: -1})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestAllocate_WarningThreshold(t *testing.T) {
	var warnings []Utilization
	m, _, _ := newTestManager(
		Capacity{CPUCores: 4, MemoryMB: 8192, DiskSpaceMB: 20480},
		0.75,
		Callbacks{OnWarning: func(u Utilization) { warnings = append(warnings, u) }},
	)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wf-1", Request{Priority: "normal"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, err = m.Allocate(ctx, "wf-2", Request{Priority: "low"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.InDelta(t, 0.75, warnings[0].CPU, 1e-9)
	assert.InDelta(t, 0.75, warnings[0].Peak(), 1e-9)
}

func TestRelease(t *testing.T) {
	m, _, bus := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 20480}, 0, Callbacks{})
	released := 0
	bus.Subscribe(event.TypeResourceReleased, func(event.Event) { released++ })
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wf-1", Request{})
	require.NoError(t, err)

	assert.True(t, m.Release(ctx, "wf-1"))
	assert.False(t, m.Release(ctx, "wf-1"))
	assert.Equal(t, 1, released)
	assert.Zero(t, m.Utilization().Used.CPUCores)
	_, ok := m.Allocation("wf-1")
	assert.False(t, ok)
}

func TestAllocations_Sorted(t *testing.T) {
	m, _, _ := newTestManager(Capacity{CPUCores: 8, MemoryMB: 8192, DiskSpaceMB: 20480}, 0, Callbacks{})
	ctx := context.Background()
	_, _ = m.Allocate(ctx, "wf-b", Request{Priority: "low"})
	_, _ = m.Allocate(ctx, "wf-a", Request{Priority: "low"})

	allocs := m.Allocations()
	require.Len(t, allocs, 2)
	assert.Equal(t, "wf-a", allocs[0].WorkflowID)
	assert.Equal(t, "wf-b", allocs[1].WorkflowID)
}

func TestUtilization_ZeroCapacity(t *testing.T) {
	m := NewManager(Config{}, nil, nil, Callbacks{}, nil)
	u := m.Utilization()
	assert.Zero(t, u.Peak())

	_, err := m.Allocate(context.Background(), "wf-1", Request{})
	assert.True(t, errors.Is(err, errors.ErrInsufficientCapacity))
}

func TestNewManagerFromConfig_NoDetection(t *testing.T) {
	cfg := config.Default()
	cfg.Resources.AutoDetect = false
	cfg.Resources.CPUCores = 3

	m := NewManagerFromConfig(context.Background(), cfg, nil, nil, Callbacks{}, nil)
	assert.Equal(t, 3, m.Capacity().CPUCores)
	assert.Equal(t, cfg.Resources.MemoryMB, m.Capacity().MemoryMB)
}

func TestMergeCapacity(t *testing.T) {
	got := mergeCapacity(Capacity{CPUCores: 12}, Capacity{CPUCores: 2, MemoryMB: 100, DiskSpaceMB: 200})
	assert.Equal(t, Capacity{CPUCores: 12, MemoryMB: 100, DiskSpaceMB: 200}, got)
}

func TestDetectCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("reads host resources")
	}
	c, err := DetectCapacity(context.Background(), t.TempDir())
	if err != nil {
		t.Logf("partial detection: %v", err)
	}
	assert.GreaterOrEqual(t, c.CPUCores, 0)
	assert.GreaterOrEqual(t, c.MemoryMB, 0)
}

func TestSetWarningThreshold(t *testing.T) {
	var warnings int
	m, _, _ := newTestManager(
		Capacity{CPUCores: 4, MemoryMB: 8192, DiskSpaceMB: 20480},
		0,
		Callbacks{OnWarning: func(Utilization) { warnings++ }},
	)
	ctx := context.Background()

	_, err := m.Allocate(ctx, "wf-1", Request{Priority: "normal"})
	require.NoError(t, err)
	assert.Zero(t, warnings)

	m.SetWarningThreshold(0.25)
	assert.Equal(t, 0.25, m.WarningThreshold())
	_, err = m.Allocate(ctx, "wf-2", Request{Priority: "low"})
	require.NoError(t, err)
	assert.Equal(t, 1, warnings)
}

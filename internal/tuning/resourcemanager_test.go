package tuning

import "testing"

func TestResourceManager_HighCPUScalesDown(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	r := NewResourceManager(cfg, 10)

	got := r.ComputeOptimalWorkers(95.0)
	if got != 9 {
		t.Fatalf("ComputeOptimalWorkers(95) = %d, want 9", got)
	}
}

func TestResourceManager_LowCPUWithPendingScalesUp(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	r := NewResourceManager(cfg, 5)
	r.SetPending(3)

	got := r.ComputeOptimalWorkers(10.0)
	if got != 6 {
		t.Fatalf("ComputeOptimalWorkers(10) with pending = %d, want 6", got)
	}
}

func TestResourceManager_LowCPUWithoutPendingHoldsSteady(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	r := NewResourceManager(cfg, 5)

	got := r.ComputeOptimalWorkers(10.0)
	if got != 5 {
		t.Fatalf("ComputeOptimalWorkers(10) with no pending work = %d, want 5 (unchanged)", got)
	}
}

func TestResourceManager_NeverScalesBelowMin(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	cfg.MinWorkers = 2
	cfg.ScaleCooldown = 0
	r := NewResourceManager(cfg, 2)

	got := r.ComputeOptimalWorkers(99.0)
	if got != 2 {
		t.Fatalf("ComputeOptimalWorkers at MinWorkers = %d, want 2 (floor)", got)
	}
}

func TestResourceManager_NeverScalesAboveMax(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	cfg.MaxWorkers = 5
	cfg.ScaleCooldown = 0
	r := NewResourceManager(cfg, 5)
	r.SetPending(1)

	got := r.ComputeOptimalWorkers(1.0)
	if got != 5 {
		t.Fatalf("ComputeOptimalWorkers at MaxWorkers = %d, want 5 (ceiling)", got)
	}
}

func TestResourceManager_CooldownHoldsLastRecommendation(t *testing.T) {
	cfg := DefaultWorkerScalingConfig()
	r := NewResourceManager(cfg, 10)

	first := r.ComputeOptimalWorkers(95.0)
	if first != 9 {
		t.Fatalf("first recommendation = %d, want 9", first)
	}

	second := r.ComputeOptimalWorkers(5.0)
	if second != first {
		t.Fatalf("recommendation within cooldown = %d, want unchanged %d", second, first)
	}
}

func TestResourceManager_OperationTrackingReflectedInStats(t *testing.T) {
	r := NewResourceManager(DefaultWorkerScalingConfig(), 4)

	r.OperationStarted()
	r.OperationStarted()
	r.OperationCompleted()
	r.SetPending(7)

	stats := r.Stats()
	if stats.ActiveOperations != 1 {
		t.Errorf("ActiveOperations = %d, want 1", stats.ActiveOperations)
	}
	if stats.CompletedOperations != 1 {
		t.Errorf("CompletedOperations = %d, want 1", stats.CompletedOperations)
	}
	if stats.PendingOperations != 7 {
		t.Errorf("PendingOperations = %d, want 7", stats.PendingOperations)
	}
	if stats.CurrentWorkers != 4 {
		t.Errorf("CurrentWorkers = %d, want 4", stats.CurrentWorkers)
	}
}

package batch

import "testing"

type fakeSampler struct {
	depth int
	load  float64
}

func (f fakeSampler) QueueDepth() int   { return f.depth }
func (f fakeSampler) SystemLoad() float64 { return f.load }

func TestAdjustGrowsUnderHighQueueLowLoad(t *testing.T) {
	cfg := DefaultConfig()
	sizer := New(cfg, fakeSampler{depth: 5000, load: 0.5})

	got := sizer.Adjust()
	want := 110
	if got != want {
		t.Errorf("Adjust() = %d, want %d", got, want)
	}
}

func TestAdjustShrinksUnderLowQueueOrHighLoad(t *testing.T) {
	cfg := DefaultConfig()
	sizer := New(cfg, fakeSampler{depth: 10, load: 0.1})

	got := sizer.Adjust()
	want := 90
	if got != want {
		t.Errorf("Adjust() = %d, want %d", got, want)
	}
}

func TestAdjustNeverCrossesMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Initial = cfg.Max
	sizer := New(cfg, fakeSampler{depth: 99999, load: 0.1})

	got := sizer.Adjust()
	if got > cfg.Max {
		t.Errorf("Adjust() = %d, exceeded max %d", got, cfg.Max)
	}
}

func TestAdjustNeverCrossesMin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Initial = cfg.Min
	sizer := New(cfg, fakeSampler{depth: 0, load: 0.0})

	got := sizer.Adjust()
	if got < cfg.Min {
		t.Errorf("Adjust() = %d, below min %d", got, cfg.Min)
	}
}

func TestPrefetchForClampsToBounds(t *testing.T) {
	cfg := DefaultConfig()
	sizer := New(cfg, fakeSampler{})

	got := sizer.PrefetchFor(1, 50)
	if got != 50 {
		t.Errorf("PrefetchFor(1, 50) = %d, want 50 (clamped)", got)
	}
}

package internaldefs

import (
	"testing"

	goKaltura "github.com/MrEthical07/goKaltura"
)

func TestFamiliesCoverEveryCounterOnce(t *testing.T) {
	names := make(map[string]bool)
	ids := make(map[goKaltura.MetricID]bool)
	for _, fam := range CounterFamilies {
		if names[fam.Name] {
			t.Fatalf("duplicate family %s", fam.Name)
		}
		names[fam.Name] = true

		if fam.Label == "" && len(fam.Series) != 1 {
			t.Fatalf("unlabeled family %s must have one series", fam.Name)
		}
		for _, s := range fam.Series {
			if ids[s.ID] {
				t.Fatalf("metric %d exported twice", s.ID)
			}
			ids[s.ID] = true
			if (fam.Label == "") != (s.Value == "") {
				t.Fatalf("family %s: label %q with value %q", fam.Name, fam.Label, s.Value)
			}
		}
	}
	for _, id := range []goKaltura.MetricID{
		goKaltura.MetricKSGeneratedV1,
		goKaltura.MetricKSGeneratedV2,
		goKaltura.MetricKSGenerationFailure,
		goKaltura.MetricKSCacheHit,
		goKaltura.MetricKSCacheMiss,
		goKaltura.MetricKSCacheError,
		goKaltura.MetricAPIRequest,
		goKaltura.MetricAPIFailure,
	} {
		if !ids[id] {
			t.Fatalf("metric %d not exported", id)
		}
	}
	if len(HistogramBounds) != 8 {
		t.Fatalf("expected 8 histogram bounds, got %d", len(HistogramBounds))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

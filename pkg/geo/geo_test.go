package geo

import (
	"math"
	"testing"
)

func TestHaversineMeters_SamePoint(t *testing.T) {
	d := HaversineMeters(-6.2088, 106.8456, -6.2088, 106.8456)
	if d != 0 {
		t.Errorf("同一点距离应为0，实际=%f", d)
	}
}

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// 雅加达国家纪念塔 → 雅加达大清真寺，约 700m
	d := HaversineMeters(-6.1754, 106.8272, -6.1702, 106.8310)
	if d < 600 || d > 800 {
		t.Errorf("期望距离约700m，实际=%f", d)
	}
}

func TestHaversineMeters_ShortRange(t *testing.T) {
	// 纬度方向 0.001° ≈ 111m
	d := HaversineMeters(-6.2000, 106.8000, -6.2010, 106.8000)
	if math.Abs(d-111.2) > 2 {
		t.Errorf("期望距离约111m，实际=%f", d)
	}
}

func TestHaversineMeters_Symmetry(t *testing.T) {
	d1 := HaversineMeters(-6.1754, 106.8272, -6.1702, 106.8310)
	d2 := HaversineMeters(-6.1702, 106.8310, -6.1754, 106.8272)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("距离应对称: %f vs %f", d1, d2)
	}
}

package annotation

import (
	"math"
	"testing"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"

	"image-annotator/pkg/geometry"
)

// scallops returns the start, midpoint and end of every cubic in p.
func scallops(p *gg.Path) (starts, mids, ends []r2.Vec) {
	var cur r2.Vec
	p.Iterate(func(verb gg.PathVerb, c []float64) {
		switch verb {
		case gg.MoveTo, gg.LineTo:
			cur = r2.Vec{X: c[0], Y: c[1]}
		case gg.CubicTo:
			c1 := r2.Vec{X: c[0], Y: c[1]}
			c2 := r2.Vec{X: c[2], Y: c[3]}
			end := r2.Vec{X: c[4], Y: c[5]}
			mid := r2.Scale(1.0/8, r2.Add(r2.Add(cur, end), r2.Scale(3, r2.Add(c1, c2))))
			starts = append(starts, cur)
			mids = append(mids, mid)
			ends = append(ends, end)
			cur = end
		}
	})
	return starts, mids, ends
}

func TestCloudPathConvergesToBoundary(t *testing.T) {
	square := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 60}, {X: 0, Y: 60}}
	prev := math.Inf(1)
	for _, arc := range []float64{16, 8, 4, 2, 1} {
		_, mids, ends := scallops(CloudPath(square, arc))
		if len(mids) == 0 {
			t.Fatalf("arc %v: no scallops", arc)
		}
		worst := 0.0
		for i, m := range mids {
			if d := geometry.DistanceToPolyline(ends[i], square, true); d > 1e-9 {
				t.Errorf("arc %v: scallop end %v is %v off the boundary", arc, ends[i], d)
			}
			worst = math.Max(worst, geometry.DistanceToPolyline(m, square, true))
		}
		if worst > cloudPad(arc)+1e-9 {
			t.Errorf("arc %v: scallop reaches %v, pad is %v", arc, worst, cloudPad(arc))
		}
		if worst >= prev {
			t.Errorf("arc %v: deviation %v did not shrink from %v", arc, worst, prev)
		}
		prev = worst
	}
}

func TestCloudPathBulgesOutward(t *testing.T) {
	cw := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 60}, {X: 0, Y: 60}}
	ccw := []r2.Vec{{X: 0, Y: 0}, {X: 0, Y: 60}, {X: 100, Y: 60}, {X: 100, Y: 0}}
	for name, pts := range map[string][]r2.Vec{"cw": cw, "ccw": ccw} {
		starts, mids, _ := scallops(CloudPath(pts, 10))
		for i, m := range mids {
			if geometry.PointInPolygon(m, pts) {
				t.Errorf("%s: scallop %d from %v bulges inward to %v", name, i, starts[i], m)
				break
			}
		}
	}
}

func TestCloudPathNonPositiveArcIsPolygon(t *testing.T) {
	tri := []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 8}}
	_, mids, _ := scallops(CloudPath(tri, 0))
	if len(mids) != 0 {
		t.Errorf("got %d cubics, want a plain polygon", len(mids))
	}
	if cloudPad(0) != 0 {
		t.Errorf("cloudPad(0) = %v", cloudPad(0))
	}
}

func TestCloudRectBoundsIncludeScallops(t *testing.T) {
	r := NewRect("img", r2.Vec{X: 50, Y: 50}, 100, 40, 0.3, DefaultStyle())
	r.Cloud = true
	r.CloudArc = 12
	_, mids, _ := scallops(CloudPath(r.oriented(r.Rotation).Points(), r.arc()))
	aabb := r.AABB()
	for _, m := range mids {
		if !geometry.BoxContains(aabb, m, 1e-9) {
			t.Errorf("scallop midpoint %v outside %v", m, aabb)
		}
	}
}

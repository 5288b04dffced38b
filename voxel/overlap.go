package voxel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Slack added to the cell half-extent so that faces lying exactly on a cell
// boundary are not lost to rounding.
const overlapEpsilon = 1e-9

var boxAxes = [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}

// triangleBoxOverlap tests a triangle against an axis-aligned cube using the
// separating axis theorem: the 3 box face normals, the triangle normal and
// the 9 cross products of box and triangle edges. Touching counts as overlap.
func triangleBoxOverlap(tri [3]r3.Vec, center r3.Vec, halfSize float64) bool {
	v0 := r3.Sub(tri[0], center)
	v1 := r3.Sub(tri[1], center)
	v2 := r3.Sub(tri[2], center)

	h := halfSize + overlapEpsilon

	for _, axis := range boxAxes {
		if separated(axis, v0, v1, v2, h) {
			return false
		}
	}

	edges := [3]r3.Vec{r3.Sub(v1, v0), r3.Sub(v2, v1), r3.Sub(v0, v2)}
	if separated(r3.Cross(edges[0], edges[1]), v0, v1, v2, h) {
		return false
	}

	for _, boxAxis := range boxAxes {
		for _, edge := range edges {
			axis := r3.Cross(boxAxis, edge)
			if r3.Dot(axis, axis) < 1e-18 {
				continue
			}
			if separated(axis, v0, v1, v2, h) {
				return false
			}
		}
	}
	return true
}

// separated returns true if the projections of the triangle and of a cube
// with half-extent h centered at the origin do not overlap on axis.
func separated(axis, v0, v1, v2 r3.Vec, h float64) bool {
	p0 := r3.Dot(v0, axis)
	p1 := r3.Dot(v1, axis)
	p2 := r3.Dot(v2, axis)

	triMin := math.Min(p0, math.Min(p1, p2))
	triMax := math.Max(p0, math.Max(p1, p2))
	boxProjection := h * (math.Abs(axis.X) + math.Abs(axis.Y) + math.Abs(axis.Z))

	return triMax < -boxProjection || triMin > boxProjection
}

// closestPointBarycentric returns the barycentric coordinates of the point
// of the triangle closest to p.
func closestPointBarycentric(tri [3]r3.Vec, p r3.Vec) [3]float64 {
	a, b, c := tri[0], tri[1], tri[2]
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)

	d1, d2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return [3]float64{1, 0, 0}
	}

	bp := r3.Sub(p, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return [3]float64{0, 1, 0}
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return [3]float64{1 - v, v, 0}
	}

	cp := r3.Sub(p, c)
	d5, d6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return [3]float64{0, 0, 1}
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return [3]float64{1 - w, 0, w}
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return [3]float64{0, 1 - w, w}
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return [3]float64{1 - v - w, v, w}
}

// rayCrossX intersects the line {(t, y, z)} with a triangle and returns the
// x coordinate of the crossing.
func rayCrossX(tri [3]r3.Vec, y, z float64) (float64, bool) {
	// 2D barycentrics in the yz plane.
	a, b, c := tri[0], tri[1], tri[2]
	det := (b.Y-a.Y)*(c.Z-a.Z) - (c.Y-a.Y)*(b.Z-a.Z)
	if math.Abs(det) < 1e-18 {
		return 0, false
	}
	u := ((y-a.Y)*(c.Z-a.Z) - (c.Y-a.Y)*(z-a.Z)) / det
	v := ((b.Y-a.Y)*(z-a.Z) - (y-a.Y)*(b.Z-a.Z)) / det
	if u < 0 || v < 0 || u+v > 1 {
		return 0, false
	}
	return a.X + u*(b.X-a.X) + v*(c.X-a.X), true
}

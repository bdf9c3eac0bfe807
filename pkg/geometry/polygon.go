package geometry

// PointInPolygon tests if a point is inside a polygon using ray casting.
// Points exactly on a vertical or horizontal edge count as inside, which
// is what grid binning needs for cells that share boundaries.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	// Boundary check first: ray casting is ambiguous exactly on edges.
	for i := 0; i < len(polygon); i++ {
		j := (i + 1) % len(polygon)
		if onSegment(p, polygon[i], polygon[j]) {
			return true
		}
	}

	inside := false
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// onSegment reports whether p lies on the segment a-b.
func onSegment(p, a, b Point2D) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	if p.X < min(a.X, b.X) || p.X > max(a.X, b.X) {
		return false
	}
	if p.Y < min(a.Y, b.Y) || p.Y > max(a.Y, b.Y) {
		return false
	}
	return true
}

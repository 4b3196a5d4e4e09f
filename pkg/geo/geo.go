// Package geo provides the numeric geometry primitives shared by the
// segment builder, POI scorer, and municipality resolver: great-circle
// distance, a flat-earth local projection for short segments, and
// point-to-segment distance on top of that projection.
package geo

import "math"

// EarthRadiusKM is the mean radius used for all great-circle distance
// calculations in this package.
const EarthRadiusKM = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// HaversineKM returns the great-circle distance between a and b in
// kilometers.
func HaversineKM(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dlat := lat2 - lat1
	dlng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return EarthRadiusKM * 2 * math.Asin(math.Sqrt(h))
}

// ToXYKM projects a lat/lng pair onto a local equirectangular plane
// centered on refLat, in kilometers. Only valid over short distances
// (route segments, not continental spans).
func ToXYKM(lat, lng, refLat float64) (x, y float64) {
	x = (lng * math.Pi / 180) * EarthRadiusKM * math.Cos(refLat*math.Pi/180)
	y = (lat * math.Pi / 180) * EarthRadiusKM
	return x, y
}

// PointToSegmentKM returns the shortest distance in kilometers from point
// to the segment [start, end], using a local equirectangular projection
// centered on the centroid of the three points.
func PointToSegmentKM(point, start, end Point) float64 {
	refLat := (point.Lat + start.Lat + end.Lat) / 3.0

	px, py := ToXYKM(point.Lat, point.Lng, refLat)
	sx, sy := ToXYKM(start.Lat, start.Lng, refLat)
	ex, ey := ToXYKM(end.Lat, end.Lng, refLat)

	vx := ex - sx
	vy := ey - sy
	segLenSq := vx*vx + vy*vy
	if segLenSq == 0 {
		return math.Hypot(px-sx, py-sy)
	}

	t := ((px-sx)*vx + (py-sy)*vy) / segLenSq
	t = math.Max(0, math.Min(1, t))
	closestX := sx + t*vx
	closestY := sy + t*vy
	return math.Hypot(px-closestX, py-closestY)
}

// Interpolate returns the point a fraction t (0..1) of the way from a to
// b, linear in lat/lng. Good enough for midpoints of short segments.
func Interpolate(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// Midpoint returns the lat/lng midpoint of a segment.
func Midpoint(a, b Point) Point {
	return Interpolate(a, b, 0.5)
}

// ResamplePolyline walks an ordered list of stops and returns the total
// path length in kilometers plus the cumulative distance at each stop,
// useful for placing a target time-of-arrival on each segment.
func ResamplePolyline(points []Point) (totalKM float64, cumulative []float64) {
	cumulative = make([]float64, len(points))
	if len(points) == 0 {
		return 0, cumulative
	}
	running := 0.0
	for i := 1; i < len(points); i++ {
		running += HaversineKM(points[i-1], points[i])
		cumulative[i] = running
	}
	return running, cumulative
}

// NearestSegment scans the polyline formed by stops and returns the index
// of the segment closest to point along with the distance in kilometers.
// Returns (-1, +Inf) if fewer than two stops are given.
func NearestSegment(point Point, stops []Point) (index int, distanceKM float64) {
	if len(stops) < 2 {
		return -1, math.Inf(1)
	}

	best := math.Inf(1)
	bestIdx := -1
	for i := 0; i < len(stops)-1; i++ {
		d := PointToSegmentKM(point, stops[i], stops[i+1])
		if d < best {
			best = d
			bestIdx = i
		}
	}
	return bestIdx, best
}

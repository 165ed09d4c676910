// Package geo holds the small amount of spherical geometry the service needs.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinates fall inside the WGS84 ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bounds is an axis aligned latitude/longitude box.
type Bounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Latitude >= b.MinLatitude && p.Latitude <= b.MaxLatitude &&
		p.Longitude >= b.MinLongitude && p.Longitude <= b.MaxLongitude
}

// BoundingBoxes returns boxes that together enclose every point within radius meters of
// center. There are two when the area crosses the antimeridian, and a single full-width
// box when it reaches a pole. They prefilter rows before the exact distance check.
func BoundingBoxes(center Point, radius float64) []Bounds {
	dLat := radius / EarthRadiusMeters * 180 / math.Pi
	minLat, maxLat := center.Latitude-dLat, center.Latitude+dLat
	if minLat <= -90 || maxLat >= 90 {
		return []Bounds{{
			MinLatitude:  math.Max(-90, minLat),
			MaxLatitude:  math.Min(90, maxLat),
			MinLongitude: -180,
			MaxLongitude: 180,
		}}
	}

	dLon := 180.0
	if cos := math.Cos(radians(center.Latitude)); cos > 1e-9 {
		dLon = dLat / cos
	}
	if dLon >= 180 {
		return []Bounds{{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: -180, MaxLongitude: 180}}
	}

	minLon, maxLon := center.Longitude-dLon, center.Longitude+dLon
	switch {
	case minLon < -180:
		return []Bounds{
			{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: minLon + 360, MaxLongitude: 180},
			{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: -180, MaxLongitude: maxLon},
		}
	case maxLon > 180:
		return []Bounds{
			{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: minLon, MaxLongitude: 180},
			{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: -180, MaxLongitude: maxLon - 360},
		}
	}
	return []Bounds{{MinLatitude: minLat, MaxLatitude: maxLat, MinLongitude: minLon, MaxLongitude: maxLon}}
}

// AnyContains reports whether any of boxes contains p.
func AnyContains(boxes []Bounds, p Point) bool {
	for _, b := range boxes {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// CampusUNSW approximates the UNSW Kensington campus.
var CampusUNSW = Bounds{
	MinLatitude:  -33.9220,
	MaxLatitude:  -33.9130,
	MinLongitude: 151.2260,
	MaxLongitude: 151.2350,
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

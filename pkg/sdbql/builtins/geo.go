package builtins

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine
// formula, matching original_source/src/sdbql/executor/builtins/geo.rs.
const earthRadiusMeters = 6371000.0

// Distance computes the great-circle distance in metres between
// (lat1,lon1) and (lat2,lon2) via the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// GeoDistance computes the haversine distance between two [lat, lon]
// points given as generic coordinate pairs.
func GeoDistance(p1, p2 [2]float64) float64 {
	return Distance(p1[0], p1[1], p2[0], p2[1])
}

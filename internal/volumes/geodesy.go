package volumes

import "math"

// earthRadius is the IUGG mean radius in meters.
const earthRadius = 6371008.8

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(r float64) float64 { return r * 180 / math.Pi }

// distance returns the great-circle distance in meters.
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// azimuth returns the initial bearing from point 1 to point 2 in degrees,
// clockwise from north, in (-180, 180].
func azimuth(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := rad(lat1), rad(lat2)
	dLon := rad(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return deg(math.Atan2(y, x))
}

// destination travels dist meters from (lat, lon) along bearing az.
func destination(lat, lon, az, dist float64) (float64, float64) {
	phi1, lambda1, theta := rad(lat), rad(lon), rad(az)
	delta := dist / earthRadius
	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	lon2 := math.Mod(deg(lambda2)+540, 360) - 180
	return deg(phi2), lon2
}

// orientedRectangle returns the closed ring (lon, lat) of a rectangle
// centred on (lat, lon), aligned with az, extending alongTrack meters
// forward and back and crossTrack meters to each side.
func orientedRectangle(lat, lon, az, alongTrack, crossTrack float64) [][2]float64 {
	frontLat, frontLon := destination(lat, lon, az, alongTrack)
	backLat, backLon := destination(lat, lon, az+180, alongTrack)

	c1Lat, c1Lon := destination(frontLat, frontLon, az-90, crossTrack)
	c2Lat, c2Lon := destination(frontLat, frontLon, az+90, crossTrack)
	c3Lat, c3Lon := destination(backLat, backLon, az+90, crossTrack)
	c4Lat, c4Lon := destination(backLat, backLon, az-90, crossTrack)

	return [][2]float64{
		{c1Lon, c1Lat},
		{c2Lon, c2Lat},
		{c3Lon, c3Lat},
		{c4Lon, c4Lat},
		{c1Lon, c1Lat},
	}
}

// bbox returns minLon, minLat, maxLon, maxLat over an open or closed ring.
func bbox(ring [][2]float64) [4]float64 {
	b := [4]float64{math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
	for _, p := range ring {
		b[0] = math.Min(b[0], p[0])
		b[1] = math.Min(b[1], p[1])
		b[2] = math.Max(b[2], p[0])
		b[3] = math.Max(b[3], p[1])
	}
	return b
}

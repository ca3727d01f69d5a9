package ws

import "math"

// validPosition checks the coordinate bounds. Out-of-range (or NaN,
// which fails every comparison) means a desynced or malicious client;
// the update is disposable either way.
func validPosition(lat, lng, zoom float64) bool {
	return lat >= -90 && lat <= 90 &&
		lng >= -180 && lng <= 180 &&
		zoom >= 0 && zoom <= 22
}

// roundTo rounds v to the given number of decimal places. Relayed
// positions carry 6 decimals for lat/lng and 1 for zoom.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

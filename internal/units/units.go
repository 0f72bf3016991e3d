// Package units holds the small conversions shared by the decoder and
// renderer: range units and the site's fixed UTC offset.
package units

// EarthRadiusKm is the mean Earth radius used for gate geolocation.
const EarthRadiusKm = 6371.0

// CentimetersToMeters converts the decoder's native range unit.
func CentimetersToMeters(cm float64) float64 { return cm / 100 }

// MetersToKm converts a range in metres to kilometres.
func MetersToKm(m float64) float64 { return m / 1000 }

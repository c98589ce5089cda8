package types

// Location is a WGS-84 coordinate pair
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are inside the WGS-84 range.
// A zero-value Location (0,0) is treated as unset rather than a point
// in the Gulf of Guinea.
func (l Location) Valid() bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

package aqi

// Category is the coarse severity bucket a predicted AQI falls into.
type Category string

const (
	CategoryHealthy   Category = "healthy"
	CategoryUnhealthy Category = "unhealthy"
	CategoryHazardous Category = "hazardous"
)

// Upper bounds (inclusive) of the healthy and unhealthy buckets.
const (
	HealthyMax   = 50.0
	UnhealthyMax = 100.0
)

// Categories lists every bucket in increasing severity.
var Categories = []Category{CategoryHealthy, CategoryUnhealthy, CategoryHazardous}

// Classify buckets an AQI value. NaN is classified as hazardous.
func Classify(value float64) Category {
	switch {
	case value <= HealthyMax:
		return CategoryHealthy
	case value <= UnhealthyMax:
		return CategoryUnhealthy
	default:
		return CategoryHazardous
	}
}

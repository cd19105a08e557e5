package geo

import (
	"fmt"
	"math"

	"github.com/c360studio/semtrip/trip"
)

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters.
func Distance(a, b trip.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// FormatDistance renders meters as 米 below one kilometer and 公里 above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d米", int(meters))
	}
	return fmt.Sprintf("%.1f公里", meters/1000)
}

// FormatDuration renders seconds as 秒, 分钟 or X小时Y分钟.
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d秒", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d分钟", seconds/60)
	default:
		return fmt.Sprintf("%d小时%d分钟", seconds/3600, (seconds%3600)/60)
	}
}

// RouteLength sums the leg distances between consecutive points.
func RouteLength(points []trip.Coordinate) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

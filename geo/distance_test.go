package geo

import (
	"testing"

	"github.com/c360studio/semtrip/trip"
	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	beijing := trip.Coordinate{Lat: 39.9042, Lng: 116.4074}
	shanghai := trip.Coordinate{Lat: 31.2304, Lng: 121.4737}

	assert.InDelta(t, 1067000, Distance(beijing, shanghai), 5000)
	assert.Zero(t, Distance(beijing, beijing))
	assert.InDelta(t, Distance(beijing, shanghai)*2,
		RouteLength([]trip.Coordinate{beijing, shanghai, beijing}), 1e-6)
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "850米", FormatDistance(850.7))
	assert.Equal(t, "1.5公里", FormatDistance(1500))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45秒", FormatDuration(45))
	assert.Equal(t, "12分钟", FormatDuration(725))
	assert.Equal(t, "2小时5分钟", FormatDuration(7500))
}

// Package geo 定义空间查询用到的几何参数
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Point 经纬度坐标
type Point struct {
	Lat float64
	Lon float64
}

// Circle 以 Center 为圆心、RadiusKm 为半径（公里）的圆
type Circle struct {
	Center   Point
	RadiusKm float64
}

// Box 由左下角和右上角确定的矩形
type Box struct {
	LowerLeft  Point
	UpperRight Point
}

// Distance 距离，单位公里
type Distance float64

// Meters 换算为米
func (d Distance) Meters() float64 {
	return float64(d) * 1000
}

const earthRadiusKm = 6371.0

// HaversineKm 两点间的大圆距离
func HaversineKm(a, b Point) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// WithinDistanceQuery 空间索引的 withinDistance 查询串
func WithinDistanceQuery(center Point, km float64) string {
	return "withinDistance:[" + joinFloats(center.Lat, center.Lon, km) + "]"
}

// BBoxQuery 空间索引的 bbox 查询串：[minLon, maxLon, minLat, maxLat]
func BBoxQuery(b Box) string {
	return "bbox:[" + joinFloats(b.LowerLeft.Lon, b.UpperRight.Lon, b.LowerLeft.Lat, b.UpperRight.Lat) + "]"
}

func joinFloats(fs ...float64) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}

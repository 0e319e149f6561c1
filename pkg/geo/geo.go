package geo

import "math"

// 地球平均半径（米），WGS84
const earthRadiusMeters = 6371000.0

// HaversineMeters 计算两个经纬度点之间的大圆距离（米）。
// 用于考勤打卡的地理围栏校验，百米量级误差可忽略。
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

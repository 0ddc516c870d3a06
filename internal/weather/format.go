package weather

import (
	"fmt"
	"math"
	"strings"
	"time"

	"caiyun/internal/geo"
)

const (
	TitlePrefix = "[彩云天气]"
	iconBase    = "https://raw.githubusercontent.com/58xinian/icon/master/Weather/"
)

type skycon struct {
	desc string
	icon string
}

var skycons = map[string]skycon{
	"CLEAR_DAY":           {"☀️ 日间晴朗", "CLEAR_DAY"},
	"CLEAR_NIGHT":         {"✨ 夜间晴朗", "CLEAR_NIGHT"},
	"PARTLY_CLOUDY_DAY":   {"⛅️ 日间多云", "PARTLY_CLOUDY_DAY"},
	"PARTLY_CLOUDY_NIGHT": {"☁️ 夜间多云", "PARTLY_CLOUDY_NIGHT"},
	"CLOUDY":              {"☁️ 阴", "CLOUDY"},
	"LIGHT_RAIN":          {"💧 小雨", "LIGHT_RAIN"},
	"MODERATE_RAIN":       {"💦 中雨", "MODERATE_RAIN"},
	"HEAVY_RAIN":          {"🌧 大雨", "HEAVY_RAIN"},
	"STORM_RAIN":          {"⛈ 暴雨", "STORM_RAIN"},
	"LIGHT_SNOW":          {"🌨 小雪", "LIGHT_SNOW"},
	"MODERATE_SNOW":       {"❄️ 中雪", "MODERATE_SNOW"},
	"HEAVY_SNOW":          {"☃️ 大雪", "HEAVY_SNOW"},
	"FOG":                 {"🌫️ 雾", "FOG"},
}

var unknownSkycon = skycon{"🌤 未知天气", "CLOUDY"}

// SkyconText is the display text for a skycon code.
func SkyconText(code string) string { return lookupSkycon(code).desc }

// SkyconIcon is the animated icon URL for a skycon code.
func SkyconIcon(code string) string { return iconBase + lookupSkycon(code).icon + ".gif" }

func lookupSkycon(code string) skycon {
	if s, ok := skycons[code]; ok {
		return s
	}
	return unknownSkycon
}

// Beaufort upper bounds in km/h.
var beaufort = []struct {
	max  float64
	text string
}{
	{5, "1级 微风徐徐"},
	{11, "2级 清风"},
	{19, "3级 树叶摇摆"},
	{28, "4级 树枝摇动"},
	{38, "5级 风力强劲"},
	{49, "6级 风力强劲"},
	{61, "7级 风力超强"},
	{74, "8级 狂风大作"},
	{88, "9级 狂风呼啸"},
	{102, "10级 暴风毁树"},
	{117, "11级 暴风毁树"},
	{133, "12级 飓风"},
}

var compass = []string{
	"北", "北东北", "东北", "东东北", "东", "东东南", "东南", "南东南",
	"南", "南西南", "西南", "西西南", "西", "西西北", "西北", "北西北",
}

// WindDirection maps degrees to one of 16 compass points.
func WindDirection(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return compass[int(math.Floor((deg+11.25)/22.5))%16]
}

// WindText renders speed (km/h) and direction, e.g. "东南风 2级 清风 (8.3km/h)".
func WindText(speed, deg float64) string {
	if speed < 1 {
		return "无风"
	}
	level := "飓风"
	for _, b := range beaufort {
		if speed <= b.max {
			level = b.text
			break
		}
	}
	return fmt.Sprintf("%s风 %s (%.1fkm/h)", WindDirection(deg), level, speed)
}

// AQIText grades a Chinese AQI value.
func AQIText(aqi float64) string {
	switch {
	case aqi <= 50:
		return "优"
	case aqi <= 100:
		return "良"
	case aqi <= 150:
		return "轻度污染"
	case aqi <= 200:
		return "中度污染"
	case aqi <= 300:
		return "重度污染"
	default:
		return "严重污染"
	}
}

var weekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// Summary is one rendered notification plus the text to speak.
type Summary struct {
	Title    string
	Subtitle string
	Body     string
	MediaURL string
	Speech   string
}

type FormatOptions struct {
	Minutely bool
	Location geo.Location
	// HourlySteps is how many upcoming hours to list. Zero means 3.
	HourlySteps int
}

// Format renders r as observed at now.
func Format(r *Response, now time.Time, opts FormatOptions) Summary {
	rt := r.Result.Realtime
	temp := round(rt.Temperature)
	desc := SkyconText(rt.Skycon)
	humidity := round(rt.Humidity * 100)
	uv := rt.LifeIndex.Ultraviolet.Desc
	comfort := rt.LifeIndex.Comfort.Desc

	title := TitlePrefix
	if opts.Location.City != "" {
		title += " " + opts.Location.City
	}
	subtitle := fmt.Sprintf("%d年%d月%d日 %s\n%s %d°C", now.Year(), int(now.Month()), now.Day(), weekdays[now.Weekday()], desc, temp)

	var b strings.Builder
	keypoint := r.Result.ForecastKeypoint
	if keypoint == "" {
		keypoint = "暂无预报要点"
	}
	fmt.Fprintf(&b, "🔱 %s\n\n", keypoint)
	if daily := r.Result.Daily.Temperature; len(daily) > 0 {
		fmt.Fprintf(&b, "🌡 %d°C ~ %d°C\n", round(daily[0].Min), round(daily[0].Max))
	}
	fmt.Fprintf(&b, "🌡 体感%s %d°C\n", comfort, round(rt.ApparentTemperature))
	fmt.Fprintf(&b, "💧 湿度 %d%%\n", humidity)
	if uv != "" {
		fmt.Fprintf(&b, "🌞 紫外线 %s\n", uv)
	}
	fmt.Fprintf(&b, "💨 %s\n", WindText(rt.Wind.Speed, rt.Wind.Direction))
	if aq := rt.AirQuality; aq != nil && aq.AQI.CHN > 0 {
		aqi := round(aq.AQI.CHN)
		fmt.Fprintf(&b, "🌫️ 空气质量 %s (AQI %d)\n", AQIText(float64(aqi)), aqi)
	}

	if m := r.Result.Minutely; opts.Minutely && m != nil && m.Status == "ok" {
		text := m.Description
		if text == "" {
			text = "暂无分钟级预报"
		}
		fmt.Fprintf(&b, "\n🌧 分钟预报: %s\n", text)
	}

	if hours := hourlyLines(r.Result.Hourly, opts.HourlySteps); len(hours) > 0 {
		fmt.Fprintf(&b, "\n[未来%d小时]\n", len(hours))
		for _, line := range hours {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if src := opts.Location.Source; src != "" {
		fmt.Fprintf(&b, "\n📍 位置来源: %s", src)
		if opts.Location.City != "" {
			fmt.Fprintf(&b, " (%s)", opts.Location.City)
		}
	}

	return Summary{
		Title:    title,
		Subtitle: subtitle,
		Body:     strings.TrimRight(b.String(), "\n"),
		MediaURL: SkyconIcon(rt.Skycon),
		Speech:   fmt.Sprintf("%s，气温%d度，%s，湿度%d%%，%s", desc, temp, comfort, humidity, uv),
	}
}

func hourlyLines(h Hourly, steps int) []string {
	if steps <= 0 {
		steps = 3
	}
	var lines []string
	for i := 0; i < steps && i < len(h.Skycon); i++ {
		point := h.Skycon[i]
		at, ok := ParseDatetime(point.Datetime)
		if !ok {
			break
		}
		start := at.Hour()
		line := fmt.Sprintf("%02d:00-%02d:00 %s", start, (start+1)%24, SkyconText(point.Value))
		if i < len(h.Temperature) {
			line += fmt.Sprintf(" %d°C", round(h.Temperature[i].Value))
		}
		lines = append(lines, line)
	}
	return lines
}

// round rounds half up, so -2.5 gives -2.
func round(v float64) int { return int(math.Floor(v + 0.5)) }

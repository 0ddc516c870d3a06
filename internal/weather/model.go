package weather

import (
	"bytes"
	"encoding/json"
	"time"
)

// Response is the subset of the v2.5 weather endpoint the task reads.
type Response struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Lang       string `json:"lang,omitempty"`
	ServerTime int64  `json:"server_time,omitempty"`
	Result     Result `json:"result"`
}

type Result struct {
	ForecastKeypoint string    `json:"forecast_keypoint"`
	Realtime         Realtime  `json:"realtime"`
	Minutely         *Minutely `json:"minutely,omitempty"`
	Hourly           Hourly    `json:"hourly"`
	Daily            Daily     `json:"daily"`
}

type Realtime struct {
	Status              string      `json:"status"`
	Temperature         float64     `json:"temperature"`
	ApparentTemperature float64     `json:"apparent_temperature"`
	Humidity            float64     `json:"humidity"`
	Skycon              string      `json:"skycon"`
	Wind                Wind        `json:"wind"`
	AirQuality          *AirQuality `json:"air_quality,omitempty"`
	LifeIndex           LifeIndex   `json:"life_index"`
}

type Wind struct {
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"`
}

type AirQuality struct {
	PM25 float64 `json:"pm25"`
	AQI  AQI     `json:"aqi"`
}

// AQI decodes both the plain number of older responses and the
// {"chn":..,"usa":..} object of v2.5. The Chinese index is used.
type AQI struct {
	CHN float64 `json:"chn"`
	USA float64 `json:"usa"`
}

func (a *AQI) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] != '{' {
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*a = AQI{CHN: v, USA: v}
		return nil
	}
	type plain AQI
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AQI(p)
	return nil
}

type LifeIndex struct {
	Ultraviolet IndexDesc `json:"ultraviolet"`
	Comfort     IndexDesc `json:"comfort"`
}

type IndexDesc struct {
	Desc string `json:"desc"`
}

type Minutely struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

type Hourly struct {
	Status      string        `json:"status"`
	Description string        `json:"description"`
	Skycon      []SkyconPoint `json:"skycon"`
	Temperature []ValuePoint  `json:"temperature"`
}

// SkyconPoint and ValuePoint carry the API's datetime text, e.g.
// "2024-05-01T10:00+08:00".
type SkyconPoint struct {
	Datetime string `json:"datetime"`
	Value    string `json:"value"`
}

type ValuePoint struct {
	Datetime string  `json:"datetime"`
	Value    float64 `json:"value"`
}

type Daily struct {
	Status      string       `json:"status"`
	Temperature []DailyRange `json:"temperature"`
}

type DailyRange struct {
	Date string  `json:"date"`
	Max  float64 `json:"max"`
	Min  float64 `json:"min"`
	Avg  float64 `json:"avg"`
}

var datetimeLayouts = []string{"2006-01-02T15:04Z07:00", time.RFC3339}

// ParseDatetime parses an API datetime, keeping its own UTC offset.
func ParseDatetime(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

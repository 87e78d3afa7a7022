package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"bandwatch/internal/model"
)

var ErrUpstream = errors.New("monitor reported failure")

type monitorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    *monitorData `json:"data"`
}

type monitorData struct {
	Total struct {
		DownSpeed speed `json:"down_speed"`
		UpSpeed   speed `json:"up_speed"`
	} `json:"total"`
	Devices []monitorDevice `json:"devices"`
}

type speed struct {
	BytesPerSecond float64 `json:"bytes_per_second"`
}

type monitorDevice struct {
	MAC       string `json:"mac"`
	Hostname  string `json:"hostname"`
	IP        string `json:"ip"`
	DownSpeed speed  `json:"down_speed"`
	UpSpeed   speed  `json:"up_speed"`
}

// Reading is one decoded monitor sample before last-seen tracking.
type Reading struct {
	Total   model.Rate
	Devices []model.Entity
}

// DecodeResponse decodes the envelope returned by GET /api/monitor.
func DecodeResponse(body []byte) (Reading, error) {
	var resp monitorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Reading{}, fmt.Errorf("decode monitor response: %w", err)
	}
	if !resp.Success {
		if resp.Message != "" {
			return Reading{}, fmt.Errorf("%w: %s", ErrUpstream, resp.Message)
		}
		return Reading{}, ErrUpstream
	}
	if resp.Data == nil {
		return Reading{}, errors.New("decode monitor response: missing data")
	}
	return resp.Data.reading(), nil
}

// DecodeData decodes a bare data object, the form published on Kafka.
func DecodeData(body []byte) (Reading, error) {
	var data monitorData
	if err := json.Unmarshal(body, &data); err != nil {
		return Reading{}, fmt.Errorf("decode monitor data: %w", err)
	}
	return data.reading(), nil
}

func (d monitorData) reading() Reading {
	r := Reading{
		Total: model.Rate{
			DownRate: toRate(d.Total.DownSpeed.BytesPerSecond),
			UpRate:   toRate(d.Total.UpSpeed.BytesPerSecond),
		},
	}
	seen := make(map[string]bool, len(d.Devices))
	for _, dev := range d.Devices {
		id := entityID(dev)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		name := strings.TrimSpace(dev.Hostname)
		if name == "" {
			name = strings.TrimSpace(dev.IP)
		}
		r.Devices = append(r.Devices, model.Entity{
			ID:   id,
			Name: name,
			Rate: model.Rate{
				DownRate: toRate(dev.DownSpeed.BytesPerSecond),
				UpRate:   toRate(dev.UpSpeed.BytesPerSecond),
			},
		})
	}
	return r
}

// entityID keys devices by MAC, falling back to IP for devices that
// report none.
func entityID(dev monitorDevice) string {
	if mac := strings.ToLower(strings.TrimSpace(dev.MAC)); mac != "" {
		return mac
	}
	return strings.TrimSpace(dev.IP)
}

func toRate(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(v))
}

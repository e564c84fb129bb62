// Package sensors provides environmental readings for the advice pipeline.
//
// Readings come from a Provider — either the built-in Simulator or a
// caller-supplied snapshot. The pipeline treats providers as opaque and
// never validates values on receipt: simulated and clamped readings are
// in range by construction, while caller-supplied values pass through
// unchanged.
package sensors

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// TimestampFormat is the wall-clock layout stamped on every reading.
const TimestampFormat = "2006-01-02 15:04:05"

// Reading is a snapshot of farm conditions. Immutable once created.
type Reading struct {
	Temperature     float64 `json:"temperature"`       // °C
	Humidity        float64 `json:"humidity"`          // %
	SoilMoisture    float64 `json:"soil_moisture"`     // %
	LightLevel      float64 `json:"light_level"`       // lux
	RainfallLast24h float64 `json:"rainfall_last_24h"` // mm
	Timestamp       string  `json:"timestamp"`
}

// Provider supplies a reading for an optional farmer identifier.
// Implementations may simulate data or look up real telemetry; the
// pipeline does not care which.
type Provider interface {
	Reading(farmerID string) Reading
}

// Simulated value ranges, matching what field sensors typically report.
const (
	simTempMin, simTempMax = 20, 40
	simHumMin, simHumMax   = 30, 90
	simSoilMin, simSoilMax = 10, 60
	simLuxMin, simLuxMax   = 2000, 10000
	simRainMin, simRainMax = 0, 30
)

// Bounds for caller-entered custom conditions.
const (
	CustomTempMin, CustomTempMax = 10, 50
	CustomLuxMax                 = 15000
	CustomRainMax                = 100
)

// Simulator generates plausible random readings in place of real farm
// telemetry. Safe for concurrent use; one instance is shared by every
// request handler.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSimulator creates a simulator seeded from the system source.
func NewSimulator() *Simulator {
	return &Simulator{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
}

// NewSeededSimulator creates a deterministic simulator for tests.
func NewSeededSimulator(seed uint64, now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	return &Simulator{
		rng: rand.New(rand.NewPCG(seed, seed)),
		now: now,
	}
}

// Reading returns a fresh simulated reading. The farmer identifier is
// accepted for interface compatibility; a production provider would use
// it to select the right field's sensors.
func (s *Simulator) Reading(farmerID string) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Reading{
		Temperature:     round1(s.uniform(simTempMin, simTempMax)),
		Humidity:        round1(s.uniform(simHumMin, simHumMax)),
		SoilMoisture:    round1(s.uniform(simSoilMin, simSoilMax)),
		LightLevel:      math.Round(s.uniform(simLuxMin, simLuxMax)),
		RainfallLast24h: round1(s.uniform(simRainMin, simRainMax)),
		Timestamp:       s.now().Format(TimestampFormat),
	}
}

func (s *Simulator) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

// NewCustomReading builds a reading from caller-entered values, clamped
// to the documented input ranges. Percentages clamp to [0,100]; the
// other fields clamp to their sensor bounds.
func NewCustomReading(temperature, humidity, soilMoisture, lightLevel, rainfall float64) Reading {
	return Reading{
		Temperature:     round1(clamp(temperature, CustomTempMin, CustomTempMax)),
		Humidity:        round1(clamp(humidity, 0, 100)),
		SoilMoisture:    round1(clamp(soilMoisture, 0, 100)),
		LightLevel:      math.Round(clamp(lightLevel, 0, CustomLuxMax)),
		RainfallLast24h: round1(clamp(rainfall, 0, CustomRainMax)),
		Timestamp:       time.Now().Format(TimestampFormat),
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

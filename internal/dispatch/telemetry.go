// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package dispatch

import (
	"math/rand/v2"
	"time"

	"github.com/open-campus-lab/accessd/internal/models"
)

// profile is a plausible electrical baseline for one equipment kind in
// one state. Values approximate the 220V single-phase campus circuits the
// synthesized samples stand in for.
type profile struct {
	voltage     float64
	current     float64
	power       float64
	energy      float64 // kWh accumulated over a nominal interval
	frequency   float64
	powerFactor float64
	temperature float64
	humidity    *float64
}

func ptr(v float64) *float64 { return &v }

// onProfiles are baselines for equipment that was just switched on.
var onProfiles = map[models.EquipmentKind]profile{
	models.EquipmentLight: {
		voltage: 220, current: 0.28, power: 60, energy: 0.06,
		frequency: 60, powerFactor: 0.92, temperature: 31,
	},
	models.EquipmentAC: {
		voltage: 220, current: 6.4, power: 1400, energy: 1.4,
		frequency: 60, powerFactor: 0.87, temperature: 23,
		humidity: ptr(55),
	},
	models.EquipmentProjector: {
		voltage: 220, current: 1.5, power: 330, energy: 0.33,
		frequency: 60, powerFactor: 0.9, temperature: 38,
	},
	models.EquipmentComputer: {
		voltage: 220, current: 1.1, power: 240, energy: 0.24,
		frequency: 60, powerFactor: 0.95, temperature: 34,
	},
	models.EquipmentOutlet: {
		voltage: 220, current: 0.9, power: 200, energy: 0.2,
		frequency: 60, powerFactor: 0.88, temperature: 29,
	},
}

// offProfiles are standby baselines after switching off. Voltage and
// frequency stay nominal; draw drops to standby levels.
var offProfiles = map[models.EquipmentKind]profile{
	models.EquipmentLight: {
		voltage: 220, current: 0.002, power: 0.4, energy: 0.001,
		frequency: 60, powerFactor: 0.4, temperature: 26,
	},
	models.EquipmentAC: {
		voltage: 220, current: 0.05, power: 11, energy: 0.01,
		frequency: 60, powerFactor: 0.45, temperature: 27,
		humidity: ptr(60),
	},
	models.EquipmentProjector: {
		voltage: 220, current: 0.02, power: 4.5, energy: 0.004,
		frequency: 60, powerFactor: 0.42, temperature: 28,
	},
	models.EquipmentComputer: {
		voltage: 220, current: 0.03, power: 6.5, energy: 0.006,
		frequency: 60, powerFactor: 0.48, temperature: 27,
	},
	models.EquipmentOutlet: {
		voltage: 220, current: 0.001, power: 0.2, energy: 0.0005,
		frequency: 60, powerFactor: 0.38, temperature: 26,
	},
}

// defaultProfile covers equipment kinds without a dedicated baseline.
var defaultProfile = profile{
	voltage: 220, current: 0.5, power: 110, energy: 0.11,
	frequency: 60, powerFactor: 0.85, temperature: 28,
}

// SynthesizeSample produces a telemetry sample for eq after a command,
// applying independent ±5% multiplicative jitter to every field so
// repeated samples look like real sensor noise.
func SynthesizeSample(eq models.Equipment, commandID int64, action models.RelayAction) models.TelemetrySample {
	profiles := onProfiles
	if action == models.RelayOff {
		profiles = offProfiles
	}
	p, ok := profiles[eq.Kind]
	if !ok {
		p = defaultProfile
	}

	sample := models.TelemetrySample{
		EquipmentID: eq.ID,
		CommandID:   commandID,
		Voltage:     jitter(p.voltage),
		Current:     jitter(p.current),
		Power:       jitter(p.power),
		Energy:      jitter(p.energy),
		Frequency:   jitter(p.frequency),
		PowerFactor: jitter(p.powerFactor),
		Temperature: jitter(p.temperature),
		Timestamp:   time.Now(),
	}
	if p.humidity != nil {
		h := jitter(*p.humidity)
		sample.Humidity = &h
	}
	return sample
}

// jitter applies a uniform multiplicative factor in [0.95, 1.05).
func jitter(v float64) float64 {
	return v * (0.95 + rand.Float64()*0.1)
}

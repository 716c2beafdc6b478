// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package models defines the domain types shared across Accessd components
// and the JSON wire types of the external interfaces.
//
// Identity, Room, Reservation and their equipment rows are owned by the
// campus admin platform; this core only reads them. AccessRecord,
// EquipmentCommand and TelemetrySample are written here.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IdentityKind classifies a card holder. Values match the platform's
// user-management vocabulary.
type IdentityKind string

const (
	IdentityProfessor  IdentityKind = "professor"
	IdentityStudent    IdentityKind = "aluno"
	IdentityTechnician IdentityKind = "tecnico"
	IdentityVisitor    IdentityKind = "visitante"
)

// Identity is a card holder. TagID is empty when no card is enrolled.
type Identity struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Kind   IdentityKind `json:"kind"`
	TagID  string       `json:"tag_id,omitempty"`
	Active bool         `json:"active"`
}

// RoomStatus is the operational status of a room.
type RoomStatus string

const (
	RoomActive      RoomStatus = "ativa"
	RoomInactive    RoomStatus = "inativa"
	RoomMaintenance RoomStatus = "manutencao"
)

// EquipmentKind classifies a controllable piece of room equipment.
type EquipmentKind string

const (
	EquipmentLight     EquipmentKind = "luz"
	EquipmentAC        EquipmentKind = "ar_condicionado"
	EquipmentProjector EquipmentKind = "projetor"
	EquipmentComputer  EquipmentKind = "computador"
	EquipmentOutlet    EquipmentKind = "tomada"
)

// Equipment is one switchable device in a room. RelayID is nil for
// equipment that is tracked but not wired to a relay.
type Equipment struct {
	ID      int64         `json:"id"`
	RoomID  int64         `json:"room_id"`
	Name    string        `json:"name"`
	Kind    EquipmentKind `json:"kind"`
	RelayID *int          `json:"relay_id,omitempty"`
	Active  bool          `json:"active"`
}

// Room is a bookable campus room with its equipment list.
type Room struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Building  string      `json:"building"`
	Status    RoomStatus  `json:"status"`
	Equipment []Equipment `json:"equipment,omitempty"`
}

// ActiveRelayIDs returns the relay ids of equipment that is active and
// wired to a relay, in equipment-list order.
func (r *Room) ActiveRelayIDs() []int {
	ids := make([]int, 0, len(r.Equipment))
	for _, eq := range r.Equipment {
		if eq.Active && eq.RelayID != nil {
			ids = append(ids, *eq.RelayID)
		}
	}
	return ids
}

// ReservationKind distinguishes recurring weekly bookings from
// date-bounded ones.
type ReservationKind string

const (
	ReservationFixed ReservationKind = "fixa"
	ReservationDated ReservationKind = "temporaria"
)

// Reservation is a booking of a room by an identity. Fixed reservations
// recur on Weekday; dated reservations are valid from StartDate through
// EndDate (nil EndDate means open-ended). StartTime and EndTime are
// "HH:MM" time-of-day bounds.
type Reservation struct {
	ID         int64           `json:"id"`
	IdentityID int64           `json:"identity_id"`
	RoomID     int64           `json:"room_id"`
	Kind       ReservationKind `json:"kind"`
	Weekday    string          `json:"weekday,omitempty"`
	StartDate  *time.Time      `json:"start_date,omitempty"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	StartTime  string          `json:"start_time"`
	EndTime    string          `json:"end_time"`
	Subject    string          `json:"subject"`
	Active     bool            `json:"active"`
}

// Schedule renders the reservation's time window for API responses,
// e.g. "08:00 - 10:00".
func (r *Reservation) Schedule() string {
	return r.StartTime + " - " + r.EndTime
}

// weekdayAbbrev maps time.Weekday to the platform's Portuguese
// abbreviations used by fixed reservations.
var weekdayAbbrev = [7]string{"dom", "seg", "ter", "qua", "qui", "sex", "sab"}

// WeekdayAbbrev returns the reservation weekday abbreviation for t.
func WeekdayAbbrev(t time.Time) string {
	return weekdayAbbrev[int(t.Weekday())]
}

// MinuteOfDay parses an "HH:MM" string into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return h*60 + m, nil
}

// AccessKind is the direction of an access record.
type AccessKind string

const (
	AccessEntry AccessKind = "entrada"
	AccessExit  AccessKind = "saida"
)

// AccessRecord is one authorized tap. The most recent record per
// (identity, room) drives the next entry/exit toggle decision.
type AccessRecord struct {
	ID         int64      `json:"id"`
	IdentityID int64      `json:"identity_id"`
	RoomID     int64      `json:"room_id"`
	Kind       AccessKind `json:"kind"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RelayAction is a hardware relay command direction.
type RelayAction string

const (
	RelayOn  RelayAction = "ON"
	RelayOff RelayAction = "OFF"
)

// EquipmentCommand records one relay command attempt against one piece of
// equipment. Commands are independent per relay; there is no transactional
// grouping across a multi-relay activation.
type EquipmentCommand struct {
	ID          int64       `json:"id"`
	EquipmentID int64       `json:"equipment_id"`
	RelayID     int         `json:"relay_id"`
	Action      RelayAction `json:"action"`
	Origin      string      `json:"origin"`
	Result      string      `json:"result"`
	Timestamp   time.Time   `json:"timestamp"`
}

// TelemetrySample is a synthesized electrical reading tagged to one
// equipment and the command that triggered it. Humidity is only present
// for equipment kinds that report it.
type TelemetrySample struct {
	ID          int64     `json:"id"`
	EquipmentID int64     `json:"equipment_id"`
	CommandID   int64     `json:"command_id"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Power       float64   `json:"power"`
	Energy      float64   `json:"energy"`
	Frequency   float64   `json:"frequency"`
	PowerFactor float64   `json:"power_factor"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TapEvent is the broker payload published by a totem when a card is
// presented. Field names are the totem firmware's contract.
type TapEvent struct {
	TagID       string `json:"cardId"`
	TimestampMs int64  `json:"timestamp"`
	OriginID    string `json:"totemId,omitempty"`
}

// Time converts the tap's epoch-milliseconds timestamp to time.Time.
func (t TapEvent) Time() time.Time {
	return time.UnixMilli(t.TimestampMs)
}

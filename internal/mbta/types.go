package mbta

import (
	"encoding/json"
	"time"
)

// Document is a decoded MBTA v3 JSON:API response envelope.
type Document struct {
	Data     []Resource `json:"data"`
	Included []Resource `json:"included,omitempty"`
}

// Resource is a single JSON:API resource. Attributes carries the union of
// the fields the tracker requests across predictions, vehicles, schedules,
// stops, and route patterns; absent fields stay nil.
type Resource struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    Attributes              `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

type Relationship struct {
	Data *ResourceRef `json:"data"`
}

type ResourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type Attributes struct {
	// Predictions and schedules.
	ArrivalTime          *string `json:"arrival_time,omitempty"`
	DepartureTime        *string `json:"departure_time,omitempty"`
	StopSequence         *int    `json:"stop_sequence,omitempty"`
	ScheduleRelationship *string `json:"schedule_relationship,omitempty"`
	Status               *string `json:"status,omitempty"`

	// Predictions and vehicles.
	DirectionID *int `json:"direction_id,omitempty"`

	// Vehicles.
	CurrentStopSequence *int     `json:"current_stop_sequence,omitempty"`
	CurrentStatus       *string  `json:"current_status,omitempty"`
	UpdatedAt           *string  `json:"updated_at,omitempty"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
	Bearing             *float64 `json:"bearing,omitempty"`
	Speed               *float64 `json:"speed,omitempty"`

	// Stops and route patterns.
	Name       *string `json:"name,omitempty"`
	Sequence   *int    `json:"sequence,omitempty"`
	SortOrder  *int    `json:"sort_order,omitempty"`
	Typicality *int    `json:"typicality,omitempty"`
}

// relatedID returns the id of a to-one relationship, or "".
func (r Resource) relatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok || rel.Data == nil {
		return ""
	}
	return rel.Data.ID
}

func (r Resource) TripID() string    { return r.relatedID("trip") }
func (r Resource) StopID() string    { return r.relatedID("stop") }
func (r Resource) VehicleID() string { return r.relatedID("vehicle") }
func (r Resource) RouteID() string   { return r.relatedID("route") }

// DepartureTime parses the departure_time attribute; ok is false when the
// field is missing or malformed.
func (r Resource) DepartureTime() (time.Time, bool) {
	return parseAttrTime(r.Attributes.DepartureTime)
}

func (r Resource) ArrivalTime() (time.Time, bool) {
	return parseAttrTime(r.Attributes.ArrivalTime)
}

func (r Resource) UpdatedAt() (time.Time, bool) {
	return parseAttrTime(r.Attributes.UpdatedAt)
}

func parseAttrTime(value *string) (time.Time, bool) {
	if value == nil || *value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// VehiclesByID indexes vehicle resources, ignoring anything without an id or
// with a non-vehicle type.
func VehiclesByID(resources []Resource) map[string]Resource {
	byID := make(map[string]Resource, len(resources))
	for _, res := range resources {
		if res.ID == "" {
			continue
		}
		if res.Type != "" && res.Type != "vehicle" {
			continue
		}
		byID[res.ID] = res
	}
	return byID
}

// RawDocument keeps the undecoded response body alongside the decoded
// envelope so the raw logger can append exactly what the API returned.
type RawDocument struct {
	Document
	Body json.RawMessage
}

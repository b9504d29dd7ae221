package collector

import "github.com/route109-tracker/internal/mbta"

// Flattened per-poll records. Missing fields are kept as explicit nulls so
// the offline analysis can tell "absent" from "empty".

type PredictionRecord struct {
	TripID               *string `json:"trip_id"`
	DepartureTime        *string `json:"departure_time"`
	ArrivalTime          *string `json:"arrival_time,omitempty"`
	StopSequence         *int    `json:"stop_sequence"`
	ScheduleRelationship *string `json:"schedule_relationship"`
	VehicleID            *string `json:"vehicle_id,omitempty"`
}

type VehicleRecord struct {
	VehicleID           string   `json:"vehicle_id"`
	TripID              *string  `json:"trip_id"`
	DirectionID         *int     `json:"direction_id"`
	CurrentStopSequence *int     `json:"current_stop_sequence"`
	CurrentStatus       *string  `json:"current_status"`
	UpdatedAt           *string  `json:"updated_at"`
	Latitude            *float64 `json:"latitude,omitempty"`
	Longitude           *float64 `json:"longitude,omitempty"`
}

type ScheduleRecord struct {
	TripID        *string `json:"trip_id"`
	DepartureTime *string `json:"departure_time"`
	StopSequence  *int    `json:"stop_sequence"`
}

type PredictionGroup struct {
	Predictions []PredictionRecord `json:"predictions"`
}

type ScheduleGroup struct {
	Schedules []ScheduleRecord `json:"schedules"`
}

// SnapshotRecord is one line of the flattened collector log.
type SnapshotRecord struct {
	Timestamp string          `json:"timestamp"`
	Boarding  PredictionGroup `json:"boarding"`
	Terminal  PredictionGroup `json:"terminal"`
	Fleet     []VehicleRecord `json:"fleet"`
	Error     *string         `json:"error"`
}

// ScheduleSnapshotRecord is one line of the hourly schedule log.
type ScheduleSnapshotRecord struct {
	Timestamp string        `json:"timestamp"`
	Boarding  ScheduleGroup `json:"boarding"`
	Terminal  ScheduleGroup `json:"terminal"`
	Error     *string       `json:"error"`
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// FlattenBoardingPrediction keeps the boarding-stop fields the analysis
// needs, including the assigned vehicle.
func FlattenBoardingPrediction(pred mbta.Resource) PredictionRecord {
	return PredictionRecord{
		TripID:               optionalID(pred.TripID()),
		DepartureTime:        pred.Attributes.DepartureTime,
		ArrivalTime:          pred.Attributes.ArrivalTime,
		StopSequence:         pred.Attributes.StopSequence,
		ScheduleRelationship: pred.Attributes.ScheduleRelationship,
		VehicleID:            optionalID(pred.VehicleID()),
	}
}

// FlattenTerminalPrediction keeps the smaller terminal-stop record.
func FlattenTerminalPrediction(pred mbta.Resource) PredictionRecord {
	return PredictionRecord{
		TripID:               optionalID(pred.TripID()),
		DepartureTime:        pred.Attributes.DepartureTime,
		StopSequence:         pred.Attributes.StopSequence,
		ScheduleRelationship: pred.Attributes.ScheduleRelationship,
	}
}

func FlattenVehicle(vehicle mbta.Resource) VehicleRecord {
	return VehicleRecord{
		VehicleID:           vehicle.ID,
		TripID:              optionalID(vehicle.TripID()),
		DirectionID:         vehicle.Attributes.DirectionID,
		CurrentStopSequence: vehicle.Attributes.CurrentStopSequence,
		CurrentStatus:       vehicle.Attributes.CurrentStatus,
		UpdatedAt:           vehicle.Attributes.UpdatedAt,
		Latitude:            vehicle.Attributes.Latitude,
		Longitude:           vehicle.Attributes.Longitude,
	}
}

func FlattenSchedule(schedule mbta.Resource) ScheduleRecord {
	return ScheduleRecord{
		TripID:        optionalID(schedule.TripID()),
		DepartureTime: schedule.Attributes.DepartureTime,
		StopSequence:  schedule.Attributes.StopSequence,
	}
}

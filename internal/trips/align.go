package trips

import (
	"time"

	"github.com/route109-tracker/internal/jsonl"
	"github.com/route109-tracker/internal/mbta"
)

// AlignedScanner walks a predictions log and a vehicles log in lockstep,
// yielding only the polls where both logs have an entry with the same
// timestamp. The lagging side is advanced until the timestamps match.
type AlignedScanner struct {
	preds *jsonl.Scanner[RawEntry]
	vehs  *jsonl.Scanner[RawEntry]

	predEntry *RawEntry
	vehEntry  *RawEntry

	curPred RawEntry
	curVeh  RawEntry
	curTime time.Time
}

func NewAlignedScanner(predictionsPath, vehiclesPath string) (*AlignedScanner, error) {
	preds, err := jsonl.Open[RawEntry](predictionsPath)
	if err != nil {
		return nil, err
	}
	vehs, err := jsonl.Open[RawEntry](vehiclesPath)
	if err != nil {
		preds.Close()
		return nil, err
	}
	s := &AlignedScanner{preds: preds, vehs: vehs}
	s.predEntry = next(preds)
	s.vehEntry = next(vehs)
	return s, nil
}

func next(scanner *jsonl.Scanner[RawEntry]) *RawEntry {
	if !scanner.Scan() {
		return nil
	}
	entry := scanner.Entry()
	return &entry
}

// Scan advances to the next timestamp-aligned pair.
func (s *AlignedScanner) Scan() bool {
	for s.predEntry != nil && s.vehEntry != nil {
		predTime, predOK := s.predEntry.Time()
		vehTime, vehOK := s.vehEntry.Time()
		if !predOK || !vehOK {
			s.predEntry = next(s.preds)
			s.vehEntry = next(s.vehs)
			continue
		}

		if predTime.Before(vehTime) {
			s.predEntry = next(s.preds)
			continue
		}
		if vehTime.Before(predTime) {
			s.vehEntry = next(s.vehs)
			continue
		}

		s.curPred = *s.predEntry
		s.curVeh = *s.vehEntry
		s.curTime = predTime
		s.predEntry = next(s.preds)
		s.vehEntry = next(s.vehs)
		return true
	}
	return false
}

// Predictions returns the prediction document of the current pair.
func (s *AlignedScanner) Predictions() mbta.Document {
	return s.curPred.Data
}

// Vehicles returns the vehicle document of the current pair.
func (s *AlignedScanner) Vehicles() mbta.Document {
	return s.curVeh.Data
}

// Time returns the shared poll timestamp of the current pair.
func (s *AlignedScanner) Time() time.Time {
	return s.curTime
}

func (s *AlignedScanner) Close() {
	s.preds.Close()
	s.vehs.Close()
}

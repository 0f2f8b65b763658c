package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fix is a single location reading.
// Accuracy is the horizontal error radius in meters; zero means not reported.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
}

// Sighting is a geotagged HIGH-risk detection.
type Sighting struct {
	Species   string
	Latitude  float64
	Longitude float64
	Time      time.Time
}

// Key returns the storage key: the sighting time in Unix milliseconds.
// Two sightings recorded in the same millisecond share a key.
func (s Sighting) Key() string {
	return strconv.FormatInt(s.Time.UnixMilli(), 10)
}

// Entry returns the stored record "species,lat,lon,time".
func (s Sighting) Entry() string {
	return strings.Join([]string{
		s.Species,
		strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		s.Key(),
	}, ",")
}

// ParseSightingEntry parses a record produced by Sighting.Entry.
func ParseSightingEntry(entry string) (Sighting, error) {
	parts := strings.Split(entry, ",")
	n := len(parts)
	if n < 4 {
		return Sighting{}, fmt.Errorf("malformed sighting entry %q", entry)
	}
	lat, err := strconv.ParseFloat(parts[n-3], 64)
	if err != nil {
		return Sighting{}, fmt.Errorf("bad latitude in %q: %w", entry, err)
	}
	lon, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil {
		return Sighting{}, fmt.Errorf("bad longitude in %q: %w", entry, err)
	}
	ms, err := strconv.ParseInt(parts[n-1], 10, 64)
	if err != nil {
		return Sighting{}, fmt.Errorf("bad timestamp in %q: %w", entry, err)
	}
	return Sighting{
		Species:   strings.Join(parts[:n-3], ","),
		Latitude:  lat,
		Longitude: lon,
		Time:      time.UnixMilli(ms),
	}, nil
}

// FeedbackEvent records one user correction and the policy state it produced.
type FeedbackEvent struct {
	ID        string
	Signal    string
	Score     int
	Threshold float64
	Time      time.Time
}

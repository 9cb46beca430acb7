package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// dateTimeLayouts are the precisions FHIR allows for a dateTime, from full
// timestamp down to a bare year. Order matters: the first layout that parses
// wins.
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

// DateTime is a FHIR dateTime. Unlike a plain time.Time it accepts partial
// precision, so values such as "2023-05" or "2023-05-01" survive a JSON
// round-trip unchanged. Time holds the start of the period the value covers.
type DateTime struct {
	Time time.Time
	raw  string
}

// NewDateTime wraps a full-precision timestamp.
func NewDateTime(t time.Time) *DateTime {
	return &DateTime{Time: t, raw: t.Format(time.RFC3339)}
}

// ParseDateTime parses a FHIR dateTime at any of its allowed precisions.
func ParseDateTime(value string) (DateTime, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return DateTime{Time: t, raw: value}, nil
		}
	}
	return DateTime{}, fmt.Errorf("invalid dateTime value %q", value)
}

// String returns the value as originally written.
func (d DateTime) String() string {
	if d.raw != "" {
		return d.raw
	}
	return d.Time.Format(time.RFC3339)
}

// MarshalJSON encodes the value at its original precision.
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a FHIR dateTime string.
func (d *DateTime) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseDateTime(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

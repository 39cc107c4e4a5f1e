// Package period scopes state reconstruction to a bounded calendar window
// ("closing the books"), layered purely on top of dcb.Tag — the storage
// layer is unaware of periods; they are ordinary tags on ordinary events.
package period

import (
	"fmt"
	"time"

	"github.com/dcbengine/dcbengine/pkg/dcb"
)

// Type is one of the supported period granularities.
type Type int

const (
	None Type = iota
	Yearly
	Monthly
	Daily
	Hourly
)

// ID identifies a single calendar period. Zero-valued fields mean "not
// part of this period's granularity" — e.g. a Monthly ID has Year and
// Month set, Day and Hour left zero.
type ID struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// Compute derives the current ID for t at the given granularity.
func Compute(periodType Type, t time.Time) ID {
	u := t.UTC()
	switch periodType {
	case Yearly:
		return ID{Year: u.Year()}
	case Monthly:
		return ID{Year: u.Year(), Month: int(u.Month())}
	case Daily:
		return ID{Year: u.Year(), Month: int(u.Month()), Day: u.Day()}
	case Hourly:
		return ID{Year: u.Year(), Month: int(u.Month()), Day: u.Day(), Hour: u.Hour()}
	default:
		return ID{}
	}
}

// Tags renders id into the year/month/day/hour tags attached to emitted
// events and used to scope projection queries. Only the fields meaningful
// at periodType's granularity are included.
func (id ID) Tags(periodType Type) []dcb.Tag {
	var tags []dcb.Tag
	switch periodType {
	case Hourly:
		tags = append(tags, dcb.NewTag("hour", fmt.Sprintf("%d", id.Hour)))
		fallthrough
	case Daily:
		tags = append(tags, dcb.NewTag("day", fmt.Sprintf("%d", id.Day)))
		fallthrough
	case Monthly:
		tags = append(tags, dcb.NewTag("month", fmt.Sprintf("%d", id.Month)))
		fallthrough
	case Yearly:
		tags = append(tags, dcb.NewTag("year", fmt.Sprintf("%d", id.Year)))
	}
	return tags
}

// String renders id as a human-readable label, always year-month-day-hour,
// e.g. "2025-12-00-00" for a Monthly id, used for log lines and
// StatementOpened/Closed event data.
func (id ID) String() string {
	return fmt.Sprintf("%04d-%02d-%02d-%02d", id.Year, id.Month, id.Day, id.Hour)
}

// Previous returns the ID immediately preceding id at the given
// granularity, used to emit StatementClosed for the period just ended.
func Previous(periodType Type, id ID) ID {
	switch periodType {
	case Yearly:
		return ID{Year: id.Year - 1}
	case Monthly:
		t := time.Date(id.Year, time.Month(id.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return ID{Year: t.Year(), Month: int(t.Month())}
	case Daily:
		t := time.Date(id.Year, time.Month(id.Month), id.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return ID{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
	case Hourly:
		t := time.Date(id.Year, time.Month(id.Month), id.Day, id.Hour, 0, 0, 0, time.UTC).Add(-time.Hour)
		return ID{Year: t.Year(), Month: int(t.Month()), Day: t.Day(), Hour: t.Hour()}
	default:
		return ID{}
	}
}

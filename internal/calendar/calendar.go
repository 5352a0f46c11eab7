// Package calendar decides when the exchange is open for matching.
package calendar

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Regular session bounds, minutes after local midnight. The open is
// inclusive and the close exclusive.
const (
	sessionOpen  = 9*60 + 30
	sessionClose = 16 * 60
)

// Calendar reports trading days and session hours in a fixed time zone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{} // YYYY-MM-DD in loc
}

// New creates a Calendar for the named IANA zone with the given holidays.
func New(zone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", zone, err)
	}
	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, err)
		}
		c.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// LoadFile reads a YAML file of the form
//
//	holidays:
//	  - 2026-01-01
//	  - 2026-12-25
//
// and builds a Calendar for zone. An empty path yields a calendar without
// holidays.
func LoadFile(zone, path string) (*Calendar, error) {
	if path == "" {
		return New(zone, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holidays file: %w", err)
	}
	var hf holidayFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("parse holidays file: %w", err)
	}
	return New(zone, hf.Holidays)
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the local date of t is a weekday that is not
// a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format(dateLayout)]
	return !holiday
}

// IsMarketOpen reports whether now falls inside the regular session of a
// trading day.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	if !c.IsTradingDay(now) {
		return false
	}
	local := now.In(c.loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= sessionOpen && minute < sessionClose
}

// LastTradingDay returns the most recent trading day on or before t, as
// midnight in the calendar's zone.
func (c *Calendar) LastTradingDay(t time.Time) time.Time {
	local := t.In(c.loc)
	d := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextOpen returns the start of the next session strictly after now, or
// now itself when the market is already open.
func (c *Calendar) NextOpen(now time.Time) time.Time {
	if c.IsMarketOpen(now) {
		return now
	}
	local := now.In(c.loc)
	d := time.Date(local.Year(), local.Month(), local.Day(), sessionOpen/60, sessionOpen%60, 0, 0, c.loc)
	if !d.After(local) {
		d = d.AddDate(0, 0, 1)
	}
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

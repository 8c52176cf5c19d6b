package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/fystack/draw-engine/pkg/common/constant"
)

const (
	periodLen  = 11
	dayLayout  = "20060102"
	seqDigits  = 3
	periodZero = ""
)

// Period identifies one draw: a calendar day plus a 1-based sequence number
// within that day. The canonical text form is YYYYMMDDNNN.
type Period struct {
	day uint32 // yyyymmdd
	seq uint16
}

func NewPeriod(day time.Time, seq int) (Period, error) {
	if seq < 1 || seq > constant.MaxDrawsPerDay {
		return Period{}, fmt.Errorf("%w: sequence %d out of range", ErrInvalidPeriod, seq)
	}
	y, m, d := day.Date()
	return Period{day: uint32(y*10000 + int(m)*100 + d), seq: uint16(seq)}, nil
}

func MustPeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func ParsePeriod(s string) (Period, error) {
	if len(s) != periodLen {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	if _, err := time.Parse(dayLayout, s[:8]); err != nil {
		return Period{}, fmt.Errorf("%w: %q: %v", ErrInvalidPeriod, s, err)
	}
	day, _ := strconv.ParseUint(s[:8], 10, 32)
	seq, err := strconv.ParseUint(s[8:], 10, 16)
	if err != nil || seq < 1 || seq > constant.MaxDrawsPerDay {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{day: uint32(day), seq: uint16(seq)}, nil
}

func (p Period) String() string {
	if p.IsZero() {
		return periodZero
	}
	return fmt.Sprintf("%08d%0*d", p.day, seqDigits, p.seq)
}

func (p Period) IsZero() bool { return p.day == 0 }

func (p Period) Seq() int { return int(p.seq) }

// Day returns midnight of the period's calendar day in loc.
func (p Period) Day(loc *time.Location) time.Time {
	y, m, d := int(p.day/10000), time.Month(p.day/100%100), int(p.day%100)
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (p Period) Compare(o Period) int {
	switch {
	case p.day < o.day:
		return -1
	case p.day > o.day:
		return 1
	case p.seq < o.seq:
		return -1
	case p.seq > o.seq:
		return 1
	}
	return 0
}

func (p Period) Before(o Period) bool { return p.Compare(o) < 0 }

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

func (p Period) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.String(), nil
}

func (p *Period) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Period{}
		return nil
	case string:
		return p.UnmarshalText([]byte(v))
	case []byte:
		return p.UnmarshalText(v)
	}
	return fmt.Errorf("%w: cannot scan %T", ErrInvalidPeriod, src)
}

// PeriodClock maps wall-clock time onto periods for a fixed draw interval.
// Numbering restarts at 1 every day at midnight in the clock's location.
type PeriodClock struct {
	interval time.Duration
	loc      *time.Location
}

func NewPeriodClock(interval time.Duration, loc *time.Location) (PeriodClock, error) {
	if interval <= 0 {
		return PeriodClock{}, fmt.Errorf("draw interval must be > 0")
	}
	if loc == nil {
		loc = time.UTC
	}
	c := PeriodClock{interval: interval, loc: loc}
	if c.PerDay() > constant.MaxDrawsPerDay {
		return PeriodClock{}, fmt.Errorf("draw interval %s yields %d draws per day, max %d",
			interval, c.PerDay(), constant.MaxDrawsPerDay)
	}
	return c, nil
}

func (c PeriodClock) Interval() time.Duration { return c.interval }

func (c PeriodClock) Location() *time.Location { return c.loc }

func (c PeriodClock) PerDay() int {
	day := 24 * time.Hour
	return int((day + c.interval - 1) / c.interval)
}

// At returns the period that is open at t.
func (c PeriodClock) At(t time.Time) Period {
	t = t.In(c.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
	seq := int(t.Sub(midnight)/c.interval) + 1
	if seq > c.PerDay() {
		seq = c.PerDay()
	}
	p, _ := NewPeriod(midnight, seq)
	return p
}

// Window returns the half-open interval [open, close) during which p accepts bets.
func (c PeriodClock) Window(p Period) (time.Time, time.Time) {
	midnight := p.Day(c.loc)
	open := midnight.Add(time.Duration(p.Seq()-1) * c.interval)
	end := open.Add(c.interval)
	if next := midnight.AddDate(0, 0, 1); end.After(next) {
		end = next
	}
	return open, end
}

func (c PeriodClock) Next(p Period) Period {
	if p.Seq() < c.PerDay() {
		n, _ := NewPeriod(p.Day(c.loc), p.Seq()+1)
		return n
	}
	n, _ := NewPeriod(p.Day(c.loc).AddDate(0, 0, 1), 1)
	return n
}

func (c PeriodClock) Previous(p Period) Period {
	if p.Seq() > 1 {
		n, _ := NewPeriod(p.Day(c.loc), p.Seq()-1)
		return n
	}
	n, _ := NewPeriod(p.Day(c.loc).AddDate(0, 0, -1), c.PerDay())
	return n
}

// Closed reports whether p no longer accepts bets at t.
func (c PeriodClock) Closed(p Period, t time.Time) bool {
	_, end := c.Window(p)
	return !t.Before(end)
}

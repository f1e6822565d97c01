package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is either a cron expression or a fixed interval.
type Schedule struct {
	Cron  string
	Every time.Duration
}

// ParseSchedule accepts a 5 field cron expression, a cron macro (@hourly,
// @every 5m) or an ISO 8601 duration (PT30M).
func ParseSchedule(s string) (Schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Schedule{}, errors.New("empty schedule")
	}
	if strings.HasPrefix(s, "P") {
		d, err := ParseISODuration(s)
		if err != nil {
			return Schedule{}, err
		}
		if d <= 0 {
			return Schedule{}, fmt.Errorf("schedule interval must be positive, got %s", d)
		}
		return Schedule{Every: d}, nil
	}
	if err := ParseCron(s); err != nil {
		return Schedule{}, err
	}
	return Schedule{Cron: s}, nil
}

// ParseCron checks a cron expression with 5 fields or a macro.
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return errors.New("empty cron expression")
	}
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser5.Parse(e)
	return err
}

var ErrISOFormat = errors.New("invalid ISO8601 duration")

var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d{1,9})?)S)?)?$`)

// ParseISODuration parses the day and time part of ISO 8601 durations,
// years, months and weeks are not supported.
func ParseISODuration(dur string) (time.Duration, error) {
	m := isoDurationRx.FindStringSubmatch(dur)
	if m == nil || dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}
	var ret time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrISOFormat, err)
		}
		ret += time.Duration(n) * unit
	}
	if m[4] != "" {
		secs, err := strconv.ParseFloat(strings.Replace(m[4], ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrISOFormat, err)
		}
		ret += time.Duration(secs * float64(time.Second))
	}
	return ret, nil
}

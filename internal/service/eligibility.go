package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// Evaluator decides whether a staff member is inside their shift window.
type Evaluator struct {
	loc    *time.Location
	buffer time.Duration
}

// NewEvaluator builds an Evaluator that reads wall clocks in loc and stops
// handing out work buffer before the shift ends.
func NewEvaluator(loc *time.Location, buffer time.Duration) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Evaluator{loc: loc, buffer: buffer}
}

// IsEligible reports whether now falls in [from, to-buffer] of the profile's
// working hours, compared at minute granularity. A profile without working
// hours is always eligible; malformed hours never are.
func (e *Evaluator) IsEligible(profile *domain.AdminProfile, now time.Time) bool {
	if profile == nil {
		return false
	}
	if profile.WorkingHours == nil {
		return true
	}
	from, ok := parseClock(profile.WorkingHours.From)
	if !ok {
		return false
	}
	to, ok := parseClock(profile.WorkingHours.To)
	if !ok {
		return false
	}

	local := now.In(e.loc)
	current := local.Hour()*60 + local.Minute()
	latest := to - int(e.buffer/time.Minute)
	return current >= from && current <= latest
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(value string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, false
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, false
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 || len(mm) != 2 {
		return 0, false
	}
	return hours*60 + minutes, true
}

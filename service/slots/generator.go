package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/solacehq/solace-server/cmd/models"
)

// Slot is a candidate bookable interval, derived on every request from the
// weekly template and live appointments. Never persisted.
type Slot struct {
	CounsellorID uint   `json:"counsellor_id"`
	Date         string `json:"date"`       // YYYY-MM-DD
	StartTime    string `json:"start_time"` // HH:MM
	EndTime      string `json:"end_time"`   // HH:MM
}

// ParseClock converts a zero-padded "HH:MM" string to minutes from
// midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether two half-open minute intervals share any
// instant.
func Overlaps(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}

type bookedInterval struct {
	start int
	end   int
}

// Generate expands a counsellor's weekly template over the horizon into
// bookable slots, dropping slots in the past, slots overlapping a pending
// or confirmed appointment, and any trailing chunk shorter than the slot
// length. Output is ascending by (date, start time) and is a pure function
// of its inputs.
func Generate(counsellorID uint, week []models.WeeklyAvailability, appointments []models.Appointment, from time.Time, horizonDays int, slotLength int, now time.Time) []Slot {
	generated := []Slot{}
	if slotLength <= 0 || horizonDays <= 0 {
		return generated
	}

	template := make(map[time.Weekday]models.WeeklyAvailability)
	for _, day := range week {
		if day.Enabled {
			template[time.Weekday(day.DayOfWeek)] = day
		}
	}

	booked := make(map[string][]bookedInterval)
	for _, appt := range appointments {
		if appt.CounsellorID != counsellorID {
			continue
		}
		if appt.Status != models.StatusPending && appt.Status != models.StatusConfirmed {
			continue
		}
		start, err := ParseClock(appt.StartTime)
		if err != nil {
			continue
		}
		end, err := ParseClock(appt.EndTime)
		if err != nil {
			continue
		}
		key := appt.Date.Format("2006-01-02")
		booked[key] = append(booked[key], bookedInterval{start: start, end: end})
	}

	today := now.Format("2006-01-02")
	nowMinutes := now.Hour()*60 + now.Minute()

	for i := 0; i < horizonDays; i++ {
		date := from.AddDate(0, 0, i)
		dateStr := date.Format("2006-01-02")
		if dateStr < today {
			continue
		}

		day, ok := template[date.Weekday()]
		if !ok {
			continue
		}
		windowStart, err := ParseClock(day.StartTime)
		if err != nil {
			continue
		}
		windowEnd, err := ParseClock(day.EndTime)
		if err != nil || windowEnd <= windowStart {
			continue
		}

		// partial trailing chunks are discarded: t+slotLength must fit
		for t := windowStart; t+slotLength <= windowEnd; t += slotLength {
			if dateStr == today && t < nowMinutes {
				continue
			}
			conflict := false
			for _, iv := range booked[dateStr] {
				if Overlaps(t, t+slotLength, iv.start, iv.end) {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
			generated = append(generated, Slot{
				CounsellorID: counsellorID,
				Date:         dateStr,
				StartTime:    formatClock(t),
				EndTime:      formatClock(t + slotLength),
			})
		}
	}

	sort.Slice(generated, func(i, j int) bool {
		if generated[i].Date != generated[j].Date {
			return generated[i].Date < generated[j].Date
		}
		return generated[i].StartTime < generated[j].StartTime
	})

	return generated
}

package models

import (
	"gorm.io/gorm"
)

// WeeklyAvailability is one day of a counsellor's weekly template. Days use
// time.Weekday numbering (Sunday = 0). Concrete bookable slots are always
// derived from these rows plus live appointments, never stored.
type WeeklyAvailability struct {
	gorm.Model
	CounsellorID uint   `gorm:"column:counsellor_id;not null;uniqueIndex:idx_counsellor_day" json:"counsellor_id"`
	DayOfWeek    int    `gorm:"column:day_of_week;not null;uniqueIndex:idx_counsellor_day" json:"day_of_week"`
	Enabled      bool   `gorm:"column:enabled;default:false" json:"enabled"`
	StartTime    string `gorm:"column:start_time;size:5" json:"start_time"`
	EndTime      string `gorm:"column:end_time;size:5" json:"end_time"`

	Counsellor *Counsellor `gorm:"foreignKey:CounsellorID" json:"-"`
}

func (WeeklyAvailability) TableName() string {
	return "weekly_availabilities"
}

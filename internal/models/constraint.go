package models

// Preference is a tri-state marker used across constraint axes.
type Preference string

const (
	Preferred Preference = "preferred"
	Avoided   Preference = "avoided"
	Neutral   Preference = "neutral"
)

// TimeOfDay classifies a slot's band on the day.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

// TimesOfDay lists the bands in day order.
var TimesOfDay = []TimeOfDay{Morning, Afternoon, Evening}

// TeacherConstraint is the structured record parsed from a teacher's
// free-text remark. A zero maxHoursPerDay means unbounded.
type TeacherConstraint struct {
	Raw             string                     `json:"raw"`
	TimePreferences map[TimeOfDay]Preference   `json:"time_preferences"`
	TypePreferences map[SessionType]Preference `json:"type_preferences"`
	UnavailableDays []Weekday                  `json:"unavailable_days,omitempty"`
	PreferredDays   []Weekday                  `json:"preferred_days,omitempty"`
	EarliestStart   string                     `json:"earliest_start,omitempty"` // HH:MM
	LatestEnd       string                     `json:"latest_end,omitempty"`     // HH:MM
	MaxHoursPerDay  int                        `json:"max_hours_per_day,omitempty"`
}

// NeutralConstraint returns an all-neutral record for the given remark.
func NeutralConstraint(raw string) *TeacherConstraint {
	c := &TeacherConstraint{
		Raw:             raw,
		TimePreferences: make(map[TimeOfDay]Preference, len(TimesOfDay)),
		TypePreferences: make(map[SessionType]Preference, len(SessionTypes)),
	}
	for _, tod := range TimesOfDay {
		c.TimePreferences[tod] = Neutral
	}
	for _, st := range SessionTypes {
		c.TypePreferences[st] = Neutral
	}
	return c
}

// DayUnavailable reports whether the weekday is marked unavailable.
func (c *TeacherConstraint) DayUnavailable(day Weekday) bool {
	for _, d := range c.UnavailableDays {
		if d == day {
			return true
		}
	}
	return false
}

// DayPreferred reports whether the weekday is marked preferred.
func (c *TeacherConstraint) DayPreferred(day Weekday) bool {
	for _, d := range c.PreferredDays {
		if d == day {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the constraint record.
func (c *TeacherConstraint) Clone() *TeacherConstraint {
	if c == nil {
		return nil
	}
	out := *c
	out.TimePreferences = make(map[TimeOfDay]Preference, len(c.TimePreferences))
	for k, v := range c.TimePreferences {
		out.TimePreferences[k] = v
	}
	out.TypePreferences = make(map[SessionType]Preference, len(c.TypePreferences))
	for k, v := range c.TypePreferences {
		out.TypePreferences[k] = v
	}
	out.UnavailableDays = append([]Weekday(nil), c.UnavailableDays...)
	out.PreferredDays = append([]Weekday(nil), c.PreferredDays...)
	return &out
}

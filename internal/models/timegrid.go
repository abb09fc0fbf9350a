package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SlotWindow is a named time window on the weekly grid.
type SlotWindow struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

// TimeGrid models the weekly grid: ordered weekdays and a slot key to
// window mapping. A distinguished break slot splits morning and
// afternoon for rendering and scoring.
type TimeGrid struct {
	Days      []Weekday             `json:"days"`
	Slots     map[string]SlotWindow `json:"slots"`
	BreakSlot string                `json:"break_slot,omitempty"`
}

// DefaultGrid returns the Monday-Saturday, four-teaching-slot grid.
func DefaultGrid() TimeGrid {
	return TimeGrid{
		Days: []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday},
		Slots: map[string]SlotWindow{
			"08:00": {Start: "08:00", End: "10:00"},
			"10:00": {Start: "10:00", End: "12:00"},
			"12:00": {Start: "12:00", End: "14:00"},
			"14:00": {Start: "14:00", End: "16:00"},
			"16:00": {Start: "16:00", End: "18:00"},
		},
		BreakSlot: "12:00",
	}
}

// GridFromConfig parses "key=HH:MM-HH:MM" slot entries and day names.
func GridFromConfig(days []string, slots []string, breakSlot string) (TimeGrid, error) {
	grid := TimeGrid{Slots: make(map[string]SlotWindow, len(slots)), BreakSlot: breakSlot}
	for _, raw := range days {
		day := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
		if DayIndex(day) == 0 {
			return TimeGrid{}, fmt.Errorf("unknown weekday %q", raw)
		}
		grid.Days = append(grid.Days, day)
	}
	for _, raw := range slots {
		key, window, ok := strings.Cut(raw, "=")
		if !ok {
			return TimeGrid{}, fmt.Errorf("malformed slot entry %q", raw)
		}
		start, end, ok := strings.Cut(window, "-")
		if !ok {
			return TimeGrid{}, fmt.Errorf("malformed slot window %q", window)
		}
		grid.Slots[strings.TrimSpace(key)] = SlotWindow{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	}
	if err := grid.Validate(); err != nil {
		return TimeGrid{}, err
	}
	return grid, nil
}

// Validate checks windows parse and the break slot exists.
func (g TimeGrid) Validate() error {
	if len(g.Days) == 0 {
		return fmt.Errorf("grid has no days")
	}
	if len(g.Slots) == 0 {
		return fmt.Errorf("grid has no slots")
	}
	for key, window := range g.Slots {
		start, err := MinuteOfDay(window.Start)
		if err != nil {
			return fmt.Errorf("slot %s: %w", key, err)
		}
		end, err := MinuteOfDay(window.End)
		if err != nil {
			return fmt.Errorf("slot %s: %w", key, err)
		}
		if end <= start {
			return fmt.Errorf("slot %s: window %s-%s is empty", key, window.Start, window.End)
		}
	}
	if g.BreakSlot != "" {
		if _, ok := g.Slots[g.BreakSlot]; !ok {
			return fmt.Errorf("break slot %s not in grid", g.BreakSlot)
		}
	}
	return nil
}

// SortedSlotKeys returns slot keys ordered by window start time.
func (g TimeGrid) SortedSlotKeys() []string {
	keys := make([]string, 0, len(g.Slots))
	for key := range g.Slots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := MinuteOfDay(g.Slots[keys[i]].Start)
		b, _ := MinuteOfDay(g.Slots[keys[j]].Start)
		return a < b
	})
	return keys
}

// TeachingSlots returns the ordered slot keys excluding the break slot.
func (g TimeGrid) TeachingSlots() []string {
	keys := g.SortedSlotKeys()
	out := keys[:0]
	for _, key := range keys {
		if key == g.BreakSlot {
			continue
		}
		out = append(out, key)
	}
	return out
}

// Classify buckets a slot by its start: morning before 12:00,
// afternoon before 18:00, evening otherwise.
func (g TimeGrid) Classify(slotKey string) TimeOfDay {
	window, ok := g.Slots[slotKey]
	if !ok {
		return Morning
	}
	start, err := MinuteOfDay(window.Start)
	if err != nil {
		return Morning
	}
	switch {
	case start < 12*60:
		return Morning
	case start < 18*60:
		return Afternoon
	default:
		return Evening
	}
}

// SlotIndex returns the position of a slot in start-time order, or -1.
func (g TimeGrid) SlotIndex(slotKey string) int {
	for i, key := range g.SortedSlotKeys() {
		if key == slotKey {
			return i
		}
	}
	return -1
}

// HasDay reports whether the weekday is part of the grid.
func (g TimeGrid) HasDay(day Weekday) bool {
	for _, d := range g.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Orphans returns ids of sessions referring to slot keys or days the
// grid no longer carries. The caller must migrate them after a grid
// change.
func (g TimeGrid) Orphans(sessions []Session) []int64 {
	var orphans []int64
	for i := range sessions {
		if _, ok := g.Slots[sessions[i].Slot]; !ok || !g.HasDay(sessions[i].Day) {
			orphans = append(orphans, sessions[i].ID)
		}
	}
	return orphans
}

// Clone returns a deep copy of the grid.
func (g TimeGrid) Clone() TimeGrid {
	out := TimeGrid{
		Days:      append([]Weekday(nil), g.Days...),
		Slots:     make(map[string]SlotWindow, len(g.Slots)),
		BreakSlot: g.BreakSlot,
	}
	for k, v := range g.Slots {
		out.Slots[k] = v
	}
	return out
}

// MinuteOfDay parses HH:MM into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0, fmt.Errorf("malformed time %q", hhmm)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("malformed hour in %q", hhmm)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("malformed minute in %q", hhmm)
	}
	return hours*60 + minutes, nil
}

var dayIndexMap = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
	Sunday:    7,
}

// DayIndex maps a weekday to its 1-based position, 0 when unknown.
func DayIndex(day Weekday) int {
	return dayIndexMap[day]
}

package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/models"
)

var (
	reNotAfter = regexp.MustCompile(`(?:pas|not|no)\s+(?:après|apres|after)\s*(\d{1,2})\s*h`)
	reAfter    = regexp.MustCompile(`(?:après|apres|after)\s*(\d{1,2})\s*h`)
	reBefore   = regexp.MustCompile(`(?:avant|before)\s*(\d{1,2})\s*h`)
	reRange    = regexp.MustCompile(`(\d{1,2})\s*h\s*(?:-|–|à|to)\s*(\d{1,2})\s*h`)
	reMaxDaily = regexp.MustCompile(`max(?:imum)?\s*(?:de\s+)?(\d{1,2})\s*h(?:eures?|ours?)?\s*(?:par|per|/)\s*(?:jour|day)`)
)

// phraseWindow bounds how far after "uniquement"/"pas" tokens are
// associated with the phrase.
const phraseWindow = 60

// ConstraintParserService turns free-text teacher remarks into
// structured constraint records. Parsing is pure: equal input yields
// an equal record.
type ConstraintParserService struct {
	lexicon *Lexicon
	days    []models.Weekday
	logger  *zap.Logger
}

// NewConstraintParserService builds a parser over the given lexicon
// and teaching days (defaults: French/English lexicon, Monday-Saturday).
func NewConstraintParserService(lexicon *Lexicon, days []models.Weekday, logger *zap.Logger) *ConstraintParserService {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	if len(days) == 0 {
		days = []models.Weekday{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday, models.Saturday}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintParserService{lexicon: lexicon, days: days, logger: logger}
}

// Parse converts a raw remark into a constraint record. Empty or
// sentinel remarks yield an all-neutral record.
func (p *ConstraintParserService) Parse(teacher, raw string) *models.TeacherConstraint {
	c := models.NeutralConstraint(raw)
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" || p.isSentinel(text) {
		return c
	}

	// Time window rules first; "pas après Xh" is blanked out so the
	// plain "après" rule cannot reuse it.
	if m := reNotAfter.FindStringSubmatch(text); m != nil {
		c.LatestEnd = hourToClock(m[1])
		text = reNotAfter.ReplaceAllString(text, " ")
	}
	if m := reRange.FindStringSubmatch(text); m != nil {
		c.EarliestStart = hourToClock(m[1])
		c.LatestEnd = hourToClock(m[2])
		text = reRange.ReplaceAllString(text, " ")
	}
	if m := reAfter.FindStringSubmatch(text); m != nil {
		c.EarliestStart = hourToClock(m[1])
	}
	if m := reBefore.FindStringSubmatch(text); m != nil && c.LatestEnd == "" {
		c.LatestEnd = hourToClock(m[1])
	}
	if m := reMaxDaily.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			c.MaxHoursPerDay = n
		}
	}

	p.applyOnlyPhrases(c, text)
	p.applyNegPhrases(c, text)

	p.logger.Debug("remark parsed",
		zap.String("teacher", teacher),
		zap.Int("unavailable_days", len(c.UnavailableDays)),
		zap.Int("preferred_days", len(c.PreferredDays)))
	return c
}

// applyOnlyPhrases handles "uniquement/seulement/only" near a day,
// type or time-of-day token: the matched items become preferred and
// the rest of that axis avoided.
func (p *ConstraintParserService) applyOnlyPhrases(c *models.TeacherConstraint, text string) {
	for _, window := range p.windows(text, p.lexicon.Only) {
		if days := p.daysIn(window); len(days) > 0 {
			for _, day := range days {
				if !c.DayPreferred(day) {
					c.PreferredDays = append(c.PreferredDays, day)
				}
			}
			for _, day := range p.days {
				if !c.DayPreferred(day) && !c.DayUnavailable(day) {
					c.UnavailableDays = append(c.UnavailableDays, day)
				}
			}
		}
		for _, tod := range p.timesIn(window) {
			c.TimePreferences[tod] = models.Preferred
			for _, other := range models.TimesOfDay {
				if other != tod && c.TimePreferences[other] == models.Neutral {
					c.TimePreferences[other] = models.Avoided
				}
			}
		}
		for _, st := range p.typesIn(window) {
			c.TypePreferences[st] = models.Preferred
			for _, other := range models.SessionTypes {
				if other != st && c.TypePreferences[other] == models.Neutral {
					c.TypePreferences[other] = models.Avoided
				}
			}
		}
	}
}

// applyNegPhrases handles "pas/no/sans" near a day, type or
// time-of-day token. Negation wins over a previous preference.
func (p *ConstraintParserService) applyNegPhrases(c *models.TeacherConstraint, text string) {
	for _, window := range p.windows(text, p.lexicon.Not) {
		for _, day := range p.daysIn(window) {
			if !c.DayUnavailable(day) {
				c.UnavailableDays = append(c.UnavailableDays, day)
			}
			c.PreferredDays = removeDay(c.PreferredDays, day)
		}
		for _, tod := range p.timesIn(window) {
			c.TimePreferences[tod] = models.Avoided
		}
		for _, st := range p.typesIn(window) {
			c.TypePreferences[st] = models.Avoided
		}
	}
}

// ParseWishes parses every non-empty teacher remark in the state and
// returns the resulting wish records, ordered by teacher name.
func (p *ConstraintParserService) ParseWishes(state *models.State) []models.Wish {
	names := make([]string, 0, len(state.Teachers))
	for name := range state.Teachers {
		names = append(names, name)
	}
	sort.Strings(names)

	wishes := make([]models.Wish, 0, len(names))
	for _, name := range names {
		t := state.Teachers[name]
		if strings.TrimSpace(t.Remark) == "" {
			continue
		}
		wishes = append(wishes, models.Wish{
			Teacher:    name,
			Raw:        t.Remark,
			Constraint: p.Parse(name, t.Remark),
		})
	}
	return wishes
}

// ValidateSession returns the hard violations of a constraint for a
// placed session; an empty list means compliant.
func (p *ConstraintParserService) ValidateSession(c *models.TeacherConstraint, sess *models.Session, grid models.TimeGrid) []string {
	if c == nil {
		return nil
	}
	var violations []string
	if c.DayUnavailable(sess.Day) {
		violations = append(violations, fmt.Sprintf("unavailable on %s", sess.Day))
	}
	window, onGrid := grid.Slots[sess.Slot]
	if onGrid {
		if c.EarliestStart != "" {
			start, err1 := models.MinuteOfDay(window.Start)
			earliest, err2 := models.MinuteOfDay(c.EarliestStart)
			if err1 == nil && err2 == nil && start < earliest {
				violations = append(violations, fmt.Sprintf("starts %s, before earliest %s", window.Start, c.EarliestStart))
			}
		}
		if c.LatestEnd != "" {
			end, err1 := models.MinuteOfDay(window.End)
			latest, err2 := models.MinuteOfDay(c.LatestEnd)
			if err1 == nil && err2 == nil && end > latest {
				violations = append(violations, fmt.Sprintf("ends %s, after latest %s", window.End, c.LatestEnd))
			}
		}
		if c.TimePreferences[grid.Classify(sess.Slot)] == models.Avoided {
			violations = append(violations, fmt.Sprintf("avoided time of day %s", grid.Classify(sess.Slot)))
		}
	}
	if c.TypePreferences[sess.Type] == models.Avoided {
		violations = append(violations, fmt.Sprintf("avoided session type %s", sess.Type))
	}
	return violations
}

// CompatibilityScore is 0 on hard violation, otherwise 1.0 with
// multiplicative bonuses capped at 1.0.
func (p *ConstraintParserService) CompatibilityScore(c *models.TeacherConstraint, sess *models.Session, grid models.TimeGrid) float64 {
	if c == nil {
		return 1.0
	}
	if len(p.ValidateSession(c, sess, grid)) > 0 {
		return 0
	}
	score := 1.0
	if c.DayPreferred(sess.Day) {
		score *= 1.2
	} else if len(c.PreferredDays) > 0 {
		score *= 0.9
	}
	if c.TypePreferences[sess.Type] == models.Preferred {
		score *= 1.15
	}
	if c.TimePreferences[grid.Classify(sess.Slot)] == models.Preferred {
		score *= 1.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// --- scanning helpers ---

// windows returns the text fragment following each marker occurrence.
// A fragment stops at the next marker of either kind, so "uniquement le
// matin, pas de TP" scopes each clause to its own marker.
func (p *ConstraintParserService) windows(text string, markers []string) []string {
	boundaries := p.markerIndexes(text)
	var out []string
	for _, marker := range markers {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(marker) + `\b`)
		for _, loc := range re.FindAllStringIndex(text, -1) {
			end := loc[1] + phraseWindow
			if end > len(text) {
				end = len(text)
			}
			for _, b := range boundaries {
				if b > loc[1] && b < end {
					end = b
				}
			}
			out = append(out, text[loc[1]:end])
		}
	}
	return out
}

func (p *ConstraintParserService) markerIndexes(text string) []int {
	var out []int
	for _, marker := range append(append([]string(nil), p.lexicon.Only...), p.lexicon.Not...) {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(marker) + `\b`)
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, loc[0])
		}
	}
	return out
}

func (p *ConstraintParserService) daysIn(window string) []models.Weekday {
	var out []models.Weekday
	for token, day := range p.lexicon.Days {
		if containsToken(window, token) && !dayIn(out, day) {
			out = append(out, day)
		}
	}
	// lexicon maps iterate in random order; keep results canonical
	sort.Slice(out, func(i, j int) bool { return models.DayIndex(out[i]) < models.DayIndex(out[j]) })
	return out
}

func (p *ConstraintParserService) timesIn(window string) []models.TimeOfDay {
	var out []models.TimeOfDay
	for token, tod := range p.lexicon.Times {
		if containsToken(window, token) {
			found := false
			for _, existing := range out {
				if existing == tod {
					found = true
					break
				}
			}
			if !found {
				out = append(out, tod)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return bandRank(out[i]) < bandRank(out[j]) })
	return out
}

func bandRank(tod models.TimeOfDay) int {
	for i, b := range models.TimesOfDay {
		if b == tod {
			return i
		}
	}
	return len(models.TimesOfDay)
}

func (p *ConstraintParserService) typesIn(window string) []models.SessionType {
	var out []models.SessionType
	for token, st := range p.lexicon.Types {
		if containsToken(window, token) {
			found := false
			for _, existing := range out {
				if existing == st {
					found = true
					break
				}
			}
			if !found {
				out = append(out, st)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return typeRank(out[i]) < typeRank(out[j]) })
	return out
}

func typeRank(st models.SessionType) int {
	for i, t := range models.SessionTypes {
		if t == st {
			return i
		}
	}
	return len(models.SessionTypes)
}

func (p *ConstraintParserService) isSentinel(text string) bool {
	for _, sentinel := range p.lexicon.Sentinels {
		if text == sentinel {
			return true
		}
	}
	return false
}

func containsToken(text, token string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)
	return re.MatchString(text)
}

func dayIn(days []models.Weekday, day models.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func removeDay(days []models.Weekday, day models.Weekday) []models.Weekday {
	out := days[:0]
	for _, d := range days {
		if d != day {
			out = append(out, d)
		}
	}
	return out
}

func hourToClock(raw string) string {
	h, err := strconv.Atoi(raw)
	if err != nil || h < 0 || h > 23 {
		return ""
	}
	return fmt.Sprintf("%02d:00", h)
}

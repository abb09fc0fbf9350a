package service

import "github.com/edtsuite/timetable-core/internal/models"

// Lexicon maps locale tokens onto constraint axes. Parsing stays
// pluggable: add tokens, not code, for a new locale.
type Lexicon struct {
	Days      map[string]models.Weekday
	Times     map[string]models.TimeOfDay
	Types     map[string]models.SessionType
	Only      []string
	Not       []string
	Sentinels []string
}

// DefaultLexicon covers French remarks with the common English
// fallbacks.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Days: map[string]models.Weekday{
			"lundi":     models.Monday,
			"mardi":     models.Tuesday,
			"mercredi":  models.Wednesday,
			"jeudi":     models.Thursday,
			"vendredi":  models.Friday,
			"samedi":    models.Saturday,
			"dimanche":  models.Sunday,
			"monday":    models.Monday,
			"tuesday":   models.Tuesday,
			"wednesday": models.Wednesday,
			"thursday":  models.Thursday,
			"friday":    models.Friday,
			"saturday":  models.Saturday,
			"sunday":    models.Sunday,
		},
		Times: map[string]models.TimeOfDay{
			"matin":      models.Morning,
			"matinée":    models.Morning,
			"morning":    models.Morning,
			"après-midi": models.Afternoon,
			"apres-midi": models.Afternoon,
			"afternoon":  models.Afternoon,
			"soir":       models.Evening,
			"soirée":     models.Evening,
			"evening":    models.Evening,
		},
		Types: map[string]models.SessionType{
			"cours":     models.TypeLecture,
			"cm":        models.TypeLecture,
			"lecture":   models.TypeLecture,
			"td":        models.TypeTutorial,
			"tutorial":  models.TypeTutorial,
			"tp":        models.TypeLab,
			"lab":       models.TypeLab,
			"labs":      models.TypeLab,
			"pratique":  models.TypeLab,
			"practical": models.TypeLab,
		},
		Only:      []string{"uniquement", "seulement", "only"},
		Not:       []string{"pas", "no", "not", "sans"},
		Sentinels: []string{"aucune remarque", "aucune", "rien", "none", "ras"},
	}
}

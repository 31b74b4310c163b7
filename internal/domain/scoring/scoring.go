// Package scoring computes the completeness score of a canonical profile.
// Scoring is a pure function of the profile: no I/O, no randomness, same
// input always yields the same score.
package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/avetra/prospect/internal/domain/model"
)

// Scoring configuration constants.
const (
	// DefaultThreshold is the quality bar a profile must meet before it
	// counts as newly scraped.
	DefaultThreshold = 75

	maxOverall = 100
	minOverall = 0

	// Detailed experience entries are those whose description exceeds this
	// many characters.
	detailedDescriptionChars = 50
	// Headlines of at least this many words earn the descriptive bonus.
	headlineBonusWords = 6
)

// Category point allotments.
const (
	maxHeadline        = 17 // 15 base + 2 bonus
	maxAbout           = 15
	maxExperience      = 20 // 12 for entries + 8 for detailed ones
	maxEducation       = 10 // 8 base + 2 multi-entry bonus
	maxSkills          = 8
	maxLocation        = 2
	maxAvatar          = 2
	maxContacts        = 3
	maxUsername        = 2
	maxAccomplishments = 2
	maxBackground      = 1
	maxProvenance      = 3
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithThreshold sets the meets-threshold bar (1..100).
func WithThreshold(threshold int) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= maxOverall {
			e.threshold = threshold
		}
	}
}

// Scorer computes a quality score from a canonical profile.
type Scorer interface {
	Score(profile model.Profile) model.QualityScore
}

// Engine implements Scorer with the fixed category table.
type Engine struct {
	threshold int
}

// New creates a scoring engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured meets-threshold bar.
func (e *Engine) Threshold() int { return e.threshold }

// Score computes the quality score of a profile. Absent data yields zero for
// its category, never an error; the overall score stays within [0, 100].
func (e *Engine) Score(p model.Profile) model.QualityScore {
	categories := map[string]model.CategoryScore{
		"headline":         scoreHeadline(p.Headline),
		"about":            scoreAbout(p.About),
		"experience":       scoreExperience(p.Experience),
		"education":        scoreEducation(p.Education),
		"skills":           scoreSkills(p.Skills),
		"location":         scorePresence(p.Location, maxLocation),
		"avatar":           scorePresence(p.AvatarURL, maxAvatar),
		"contacts":         scoreContacts(p.Contacts),
		"username":         scorePresence(p.Username, maxUsername),
		"accomplishments":  scoreAccomplishments(p.Accomplishments),
		"background_image": scorePresence(p.BackgroundURL, maxBackground),
		"provenance":       scoreProvenance(p.Provenance),
	}

	overall := 0
	for _, c := range categories {
		overall += c.Points
	}
	if overall > maxOverall {
		overall = maxOverall
	}
	if overall < minOverall {
		overall = minOverall
	}

	return model.QualityScore{
		Overall:        overall,
		Grade:          GradeFor(overall),
		Categories:     categories,
		Threshold:      e.threshold,
		MeetsThreshold: overall >= e.threshold,
	}
}

// scoreHeadline awards min(15, 2w) for w words, plus 2 when the headline is
// descriptive (w >= 6).
func scoreHeadline(headline string) model.CategoryScore {
	words := len(strings.Fields(headline))
	points := 2 * words
	if points > 15 {
		points = 15
	}
	if words >= headlineBonusWords {
		points += 2
	}
	return model.CategoryScore{Points: points, Max: maxHeadline, Measure: words}
}

// scoreAbout awards banded points by character count.
func scoreAbout(about string) model.CategoryScore {
	chars := utf8.RuneCountInString(about)
	var points int
	switch {
	case chars == 0:
		points = 0
	case chars < 100:
		points = 5
	case chars < 200:
		points = 8
	case chars < 500:
		points = 12
	default:
		points = 15
	}
	return model.CategoryScore{Points: points, Max: maxAbout, Measure: chars}
}

// scoreExperience awards min(12, 4e) for e entries plus min(8, 2d) for the d
// entries carrying a meaningful description.
func scoreExperience(entries []model.Experience) model.CategoryScore {
	detailed := 0
	for _, exp := range entries {
		if utf8.RuneCountInString(exp.Description) > detailedDescriptionChars {
			detailed++
		}
	}
	base := 4 * len(entries)
	if base > 12 {
		base = 12
	}
	depth := 2 * detailed
	if depth > 8 {
		depth = 8
	}
	return model.CategoryScore{Points: base + depth, Max: maxExperience, Measure: len(entries)}
}

// scoreEducation awards min(8, 4·ed) plus 2 when more than one entry exists.
func scoreEducation(entries []model.Education) model.CategoryScore {
	points := 4 * len(entries)
	if points > 8 {
		points = 8
	}
	if len(entries) > 1 {
		points += 2
	}
	return model.CategoryScore{Points: points, Max: maxEducation, Measure: len(entries)}
}

// scoreSkills awards banded points by skill count.
func scoreSkills(skills []string) model.CategoryScore {
	count := len(skills)
	var points int
	switch {
	case count == 0:
		points = 0
	case count < 5:
		points = 2
	case count < 10:
		points = 5
	default:
		points = 8
	}
	return model.CategoryScore{Points: points, Max: maxSkills, Measure: count}
}

// scorePresence awards the full allotment when the value is non-empty.
func scorePresence(value string, max int) model.CategoryScore {
	if strings.TrimSpace(value) == "" {
		return model.CategoryScore{Points: 0, Max: max, Measure: 0}
	}
	return model.CategoryScore{Points: max, Max: max, Measure: 1}
}

// scoreContacts awards 2 for a profile URL and 1 for an email address.
func scoreContacts(c model.Contacts) model.CategoryScore {
	points, present := 0, 0
	if strings.TrimSpace(c.ProfileURL) != "" {
		points += 2
		present++
	}
	if strings.TrimSpace(c.Email) != "" {
		points++
		present++
	}
	return model.CategoryScore{Points: points, Max: maxContacts, Measure: present}
}

// scoreAccomplishments awards 1 for any accomplishment, 2 for three or more.
func scoreAccomplishments(entries []model.Accomplishment) model.CategoryScore {
	var points int
	switch {
	case len(entries) == 0:
		points = 0
	case len(entries) < 3:
		points = 1
	default:
		points = 2
	}
	return model.CategoryScore{Points: points, Max: maxAccomplishments, Measure: len(entries)}
}

// scoreProvenance awards 2 for a known provider and 1 for a transform stamp.
func scoreProvenance(p model.Provenance) model.CategoryScore {
	points, present := 0, 0
	if strings.TrimSpace(p.Provider) != "" {
		points += 2
		present++
	}
	if !p.TransformedAt.IsZero() {
		points++
		present++
	}
	return model.CategoryScore{Points: points, Max: maxProvenance, Measure: present}
}

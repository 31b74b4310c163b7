package transform

import (
	"encoding/json"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// scrapflyPayload wraps the profile document under a "profile" key, the way
// the scrapfly-style extractor reports it.
type scrapflyPayload struct {
	Profile *scrapflyProfile `json:"profile"`
}

type scrapflyProfile struct {
	PublicID     string               `json:"public_id"`
	FullName     string               `json:"full_name"`
	Title        string               `json:"title"`
	About        string               `json:"about"`
	Location     scrapflyLocation     `json:"location"`
	Avatar       string               `json:"avatar"`
	Cover        string               `json:"cover"`
	URL          string               `json:"url"`
	Email        string               `json:"email"`
	Websites     []string             `json:"websites"`
	Experience   []scrapflyExperience `json:"experience"`
	Education    []scrapflyEducation  `json:"education"`
	Skills       []string             `json:"skills"`
	Awards       []scrapflyAward      `json:"awards"`
	Certificates []scrapflyAward      `json:"certificates"`
}

type scrapflyLocation struct {
	Default string `json:"default"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type scrapflyExperience struct {
	Position     string `json:"position"`
	Organization string `json:"organization"`
	Summary      string `json:"summary"`
	Start        string `json:"start"` // "2020-01"
	End          string `json:"end"`   // "" while current
}

type scrapflyEducation struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Field  string `json:"field"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type scrapflyAward struct {
	Name string `json:"name"`
	By   string `json:"by"`
	Year int    `json:"year"`
}

// mapScrapfly maps the scrapfly-style document onto the canonical schema.
func (t *Transformer) mapScrapfly(payload []byte) (model.Profile, error) {
	var doc scrapflyPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return model.Profile{}, faults.Wrap(faults.KindTransformInvalid, err, "payload is not the expected document")
	}
	if doc.Profile == nil {
		return model.Profile{}, faults.New(faults.KindTransformMissingField, "document has no profile object")
	}
	src := doc.Profile

	p := model.Profile{
		Username:      clean(src.PublicID),
		Headline:      clean(src.Title),
		About:         cleanBlock(src.About),
		Location:      clean(src.Location.Default),
		AvatarURL:     clean(src.Avatar),
		BackgroundURL: clean(src.Cover),
		Contacts: model.Contacts{
			ProfileURL: clean(src.URL),
			Email:      clean(src.Email),
			Websites:   dedupe(src.Websites),
		},
	}
	if p.Location == "" && src.Location.City != "" {
		p.Location = clean(src.Location.City + ", " + src.Location.Country)
	}

	now := t.now()
	for _, e := range src.Experience {
		startYear, startMonth := parseYearMonth(e.Start)
		endYear, endMonth := parseYearMonth(e.End)
		exp := model.Experience{
			Title:       clean(e.Position),
			Company:     clean(e.Organization),
			Description: cleanBlock(e.Summary),
			StartDate:   formatMonthYear(startMonth, startYear),
			EndDate:     formatEnd(endMonth, endYear, startYear),
			Duration:    durationBetween(startMonth, startYear, endMonth, endYear, now),
		}
		if exp.Title == "" && exp.Company == "" {
			continue
		}
		p.Experience = append(p.Experience, exp)
	}

	for _, e := range src.Education {
		if clean(e.School) == "" {
			continue
		}
		startYear, _ := parseYearMonth(e.Start)
		endYear, _ := parseYearMonth(e.End)
		p.Education = append(p.Education, model.Education{
			Institution: clean(e.School),
			Degree:      clean(e.Degree),
			Field:       clean(e.Field),
			StartYear:   startYear,
			EndYear:     endYear,
		})
	}

	p.Skills = dedupe(src.Skills)

	for _, c := range src.Certificates {
		if clean(c.Name) == "" {
			continue
		}
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "certification",
			Title:  clean(c.Name),
			Issuer: clean(c.By),
			Year:   c.Year,
		})
	}
	for _, a := range src.Awards {
		if clean(a.Name) == "" {
			continue
		}
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "honor",
			Title:  clean(a.Name),
			Issuer: clean(a.By),
			Year:   a.Year,
		})
	}

	return p, nil
}

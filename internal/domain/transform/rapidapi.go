package transform

import (
	"encoding/json"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// rapidAPIPayload is the flat camelCase document the rapidapi-style provider
// returns.
type rapidAPIPayload struct {
	Username        string              `json:"username"`
	FirstName       string              `json:"firstName"`
	LastName        string              `json:"lastName"`
	Headline        string              `json:"headline"`
	Summary         string              `json:"summary"`
	Geo             rapidAPIGeo         `json:"geo"`
	ProfilePicture  string              `json:"profilePicture"`
	BackgroundImage []rapidAPIImage     `json:"backgroundImage"`
	Position        []rapidAPIPosition  `json:"position"`
	Educations      []rapidAPIEducation `json:"educations"`
	Skills          []rapidAPISkill     `json:"skills"`
	Certifications  []rapidAPICert      `json:"certifications"`
	Honors          []rapidAPIHonor     `json:"honors"`
	ProfileURL      string              `json:"profileURL"`
	Email           string              `json:"email"`
}

type rapidAPIGeo struct {
	Full    string `json:"full"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type rapidAPIImage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

type rapidAPIDate struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type rapidAPIPosition struct {
	Title       string       `json:"title"`
	CompanyName string       `json:"companyName"`
	Description string       `json:"description"`
	Start       rapidAPIDate `json:"start"`
	End         rapidAPIDate `json:"end"`
}

type rapidAPIEducation struct {
	SchoolName   string       `json:"schoolName"`
	Degree       string       `json:"degree"`
	FieldOfStudy string       `json:"fieldOfStudy"`
	Start        rapidAPIDate `json:"start"`
	End          rapidAPIDate `json:"end"`
}

type rapidAPISkill struct {
	Name string `json:"name"`
}

type rapidAPICert struct {
	Name      string       `json:"name"`
	Authority string       `json:"authority"`
	Start     rapidAPIDate `json:"start"`
}

type rapidAPIHonor struct {
	Title    string       `json:"title"`
	Issuer   string       `json:"issuer"`
	IssuedOn rapidAPIDate `json:"issuedOn"`
}

// mapRapidAPI maps the rapidapi-style document onto the canonical schema.
func (t *Transformer) mapRapidAPI(payload []byte) (model.Profile, error) {
	var doc rapidAPIPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return model.Profile{}, faults.Wrap(faults.KindTransformInvalid, err, "payload is not the expected document")
	}
	if doc.Username == "" && doc.FirstName == "" && doc.Headline == "" {
		return model.Profile{}, faults.New(faults.KindTransformMissingField, "document carries no identity fields")
	}

	p := model.Profile{
		Username:  clean(doc.Username),
		Headline:  clean(doc.Headline),
		About:     cleanBlock(doc.Summary),
		Location:  clean(doc.Geo.Full),
		AvatarURL: clean(doc.ProfilePicture),
		Contacts: model.Contacts{
			ProfileURL: clean(doc.ProfileURL),
			Email:      clean(doc.Email),
		},
	}
	if p.Location == "" && doc.Geo.City != "" {
		p.Location = clean(doc.Geo.City + ", " + doc.Geo.Country)
	}
	p.BackgroundURL = bestImage(doc.BackgroundImage)

	now := t.now()
	for _, pos := range doc.Position {
		exp := model.Experience{
			Title:       clean(pos.Title),
			Company:     clean(pos.CompanyName),
			Description: cleanBlock(pos.Description),
			StartDate:   formatMonthYear(pos.Start.Month, pos.Start.Year),
			EndDate:     formatEnd(pos.End.Month, pos.End.Year, pos.Start.Year),
			Duration:    durationBetween(pos.Start.Month, pos.Start.Year, pos.End.Month, pos.End.Year, now),
		}
		if exp.Title == "" && exp.Company == "" {
			continue
		}
		p.Experience = append(p.Experience, exp)
	}

	for _, edu := range doc.Educations {
		if clean(edu.SchoolName) == "" {
			continue
		}
		p.Education = append(p.Education, model.Education{
			Institution: clean(edu.SchoolName),
			Degree:      clean(edu.Degree),
			Field:       clean(edu.FieldOfStudy),
			StartYear:   edu.Start.Year,
			EndYear:     edu.End.Year,
		})
	}

	names := make([]string, 0, len(doc.Skills))
	for _, s := range doc.Skills {
		names = append(names, s.Name)
	}
	p.Skills = dedupe(names)

	for _, c := range doc.Certifications {
		if clean(c.Name) == "" {
			continue
		}
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "certification",
			Title:  clean(c.Name),
			Issuer: clean(c.Authority),
			Year:   c.Start.Year,
		})
	}
	for _, h := range doc.Honors {
		if clean(h.Title) == "" {
			continue
		}
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "honor",
			Title:  clean(h.Title),
			Issuer: clean(h.Issuer),
			Year:   h.IssuedOn.Year,
		})
	}

	return p, nil
}

// bestImage picks the largest background image by pixel area.
func bestImage(images []rapidAPIImage) string {
	best, bestArea := "", -1
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		area := img.Width * img.Height
		if area > bestArea {
			best, bestArea = img.URL, area
		}
	}
	return clean(best)
}

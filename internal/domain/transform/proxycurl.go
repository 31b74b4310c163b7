package transform

import (
	"encoding/json"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// proxycurlPayload is the flat snake_case document the proxycurl-style
// provider returns; date fields arrive as {day, month, year} objects or null.
type proxycurlPayload struct {
	PublicIdentifier string                `json:"public_identifier"`
	Occupation       string                `json:"occupation"`
	Headline         string                `json:"headline"`
	Summary          string                `json:"summary"`
	City             string                `json:"city"`
	CountryFullName  string                `json:"country_full_name"`
	ProfilePicURL    string                `json:"profile_pic_url"`
	BackgroundURL    string                `json:"background_cover_image_url"`
	Experiences      []proxycurlExperience `json:"experiences"`
	Education        []proxycurlEducation  `json:"education"`
	Skills           []string              `json:"skills"`
	HonorsAwards     []proxycurlHonor      `json:"accomplishment_honors_awards"`
	Certifications   []proxycurlCert       `json:"certifications"`
	PersonalEmails   []string              `json:"personal_emails"`
}

type proxycurlDate struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

type proxycurlExperience struct {
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	Description string         `json:"description"`
	StartsAt    *proxycurlDate `json:"starts_at"`
	EndsAt      *proxycurlDate `json:"ends_at"`
}

type proxycurlEducation struct {
	School       string         `json:"school"`
	DegreeName   string         `json:"degree_name"`
	FieldOfStudy string         `json:"field_of_study"`
	StartsAt     *proxycurlDate `json:"starts_at"`
	EndsAt       *proxycurlDate `json:"ends_at"`
}

type proxycurlHonor struct {
	Title    string         `json:"title"`
	Issuer   string         `json:"issuer"`
	IssuedOn *proxycurlDate `json:"issued_on"`
}

type proxycurlCert struct {
	Name      string         `json:"name"`
	Authority string         `json:"authority"`
	StartsAt  *proxycurlDate `json:"starts_at"`
}

func (d *proxycurlDate) parts() (month, year int) {
	if d == nil {
		return 0, 0
	}
	return d.Month, d.Year
}

// mapProxycurl maps the proxycurl-style document onto the canonical schema.
func (t *Transformer) mapProxycurl(payload []byte) (model.Profile, error) {
	var doc proxycurlPayload
	if err := json.Unmarshal(payload, &doc); err != nil {
		return model.Profile{}, faults.Wrap(faults.KindTransformInvalid, err, "payload is not the expected document")
	}
	if doc.PublicIdentifier == "" && doc.Headline == "" && doc.Occupation == "" {
		return model.Profile{}, faults.New(faults.KindTransformMissingField, "document carries no identity fields")
	}

	headline := doc.Headline
	if headline == "" {
		headline = doc.Occupation
	}

	p := model.Profile{
		Username:      clean(doc.PublicIdentifier),
		Headline:      clean(headline),
		About:         cleanBlock(doc.Summary),
		AvatarURL:     clean(doc.ProfilePicURL),
		BackgroundURL: clean(doc.BackgroundURL),
	}
	if doc.City != "" {
		p.Location = clean(doc.City + ", " + doc.CountryFullName)
	} else if doc.CountryFullName != "" {
		p.Location = clean(doc.CountryFullName)
	}
	if len(doc.PersonalEmails) > 0 {
		p.Contacts.Email = clean(doc.PersonalEmails[0])
	}

	now := t.now()
	for _, e := range doc.Experiences {
		startMonth, startYear := e.StartsAt.parts()
		endMonth, endYear := e.EndsAt.parts()
		exp := model.Experience{
			Title:       clean(e.Title),
			Company:     clean(e.Company),
			Description: cleanBlock(e.Description),
			StartDate:   formatMonthYear(startMonth, startYear),
			EndDate:     formatEnd(endMonth, endYear, startYear),
			Duration:    durationBetween(startMonth, startYear, endMonth, endYear, now),
		}
		if exp.Title == "" && exp.Company == "" {
			continue
		}
		p.Experience = append(p.Experience, exp)
	}

	for _, e := range doc.Education {
		if clean(e.School) == "" {
			continue
		}
		_, startYear := e.StartsAt.parts()
		_, endYear := e.EndsAt.parts()
		p.Education = append(p.Education, model.Education{
			Institution: clean(e.School),
			Degree:      clean(e.DegreeName),
			Field:       clean(e.FieldOfStudy),
			StartYear:   startYear,
			EndYear:     endYear,
		})
	}

	p.Skills = dedupe(doc.Skills)

	for _, c := range doc.Certifications {
		if clean(c.Name) == "" {
			continue
		}
		_, year := c.StartsAt.parts()
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "certification",
			Title:  clean(c.Name),
			Issuer: clean(c.Authority),
			Year:   year,
		})
	}
	for _, h := range doc.HonorsAwards {
		if clean(h.Title) == "" {
			continue
		}
		_, year := h.IssuedOn.parts()
		p.Accomplishments = append(p.Accomplishments, model.Accomplishment{
			Kind:   "honor",
			Title:  clean(h.Title),
			Issuer: clean(h.Issuer),
			Year:   year,
		})
	}

	return p, nil
}

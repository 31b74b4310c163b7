package model

import "time"

// Profile is the canonical, provider-agnostic professional-profile record.
// Field tags mirror the persisted document schema.
type Profile struct {
	Username        string           `json:"username"`
	Headline        string           `json:"headline"`
	About           string           `json:"about"`
	Location        string           `json:"location"`
	AvatarURL       string           `json:"avatar_url,omitempty"`
	BackgroundURL   string           `json:"background_url,omitempty"`
	Experience      []Experience     `json:"experience,omitempty"`
	Education       []Education      `json:"education,omitempty"`
	Skills          []string         `json:"skills,omitempty"`
	Accomplishments []Accomplishment `json:"accomplishments,omitempty"`
	Contacts        Contacts         `json:"contacts"`
	Provenance      Provenance       `json:"provenance"`
}

// Experience is one position held, newest first in Profile.Experience.
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description,omitempty"`
	StartDate   string `json:"start_date,omitempty"` // "Jan 2020"
	EndDate     string `json:"end_date,omitempty"`   // "Mar 2023" or "Present"
	Duration    string `json:"duration,omitempty"`   // "3 yrs, 2 mos"
}

// Education is one schooling entry.
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartYear   int    `json:"start_year,omitempty"`
	EndYear     int    `json:"end_year,omitempty"`
}

// Accomplishment is a certification, honor or award.
type Accomplishment struct {
	Kind   string `json:"kind"` // "certification" or "honor"
	Title  string `json:"title"`
	Issuer string `json:"issuer,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// Contacts groups the ways a profile can be reached.
type Contacts struct {
	ProfileURL string   `json:"profile_url,omitempty"`
	Email      string   `json:"email,omitempty"`
	Websites   []string `json:"websites,omitempty"`
}

// Provenance records where a canonical profile came from.
type Provenance struct {
	Provider      string    `json:"provider"`
	FetchedAt     time.Time `json:"fetched_at"`
	TransformedAt time.Time `json:"transformed_at"`
}

package filter

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/sl-c19-memorial/memorial-web/internal/geo"
)

// AgeRange is one of the fixed age buckets offered by the filter.
type AgeRange string

const (
	AgeBelow30   AgeRange = "0-30"
	Age30To59    AgeRange = "30-59"
	Age60AndOver AgeRange = "60-120"
)

// AgeRanges lists the buckets in display order.
var AgeRanges = []AgeRange{AgeBelow30, Age30To59, Age60AndOver}

// Valid reports whether r is unset or a known bucket.
func (r AgeRange) Valid() bool {
	switch r {
	case "", AgeBelow30, Age30To59, Age60AndOver:
		return true
	}
	return false
}

// Gender is one of the fixed gender options.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Genders lists the options in display order.
var Genders = []Gender{GenderMale, GenderFemale}

// Valid reports whether g is unset or a known option.
func (g Gender) Valid() bool {
	switch g {
	case "", GenderMale, GenderFemale:
		return true
	}
	return false
}

// ErrInvalidSelection is returned by Selection.Validate.
var ErrInvalidSelection = errors.New("filter: invalid selection")

// Selection is the current filter state. Empty fields are undefined.
type Selection struct {
	Province geo.ID   `json:"province,omitempty"`
	District geo.ID   `json:"district,omitempty"`
	City     geo.ID   `json:"city,omitempty"`
	AgeRange AgeRange `json:"ageRange,omitempty"`
	Gender   Gender   `json:"gender,omitempty"`
	// Initial is true only for the mount state, before any action.
	Initial bool `json:"init"`
}

// Initial returns the mount state.
func Initial() Selection {
	return Selection{Initial: true}
}

// Validate checks the cascade rule and the enum fields.
func (s Selection) Validate() error {
	switch {
	case s.District != "" && s.Province == "":
		return fmt.Errorf("%w: district without province", ErrInvalidSelection)
	case s.City != "" && s.District == "":
		return fmt.Errorf("%w: city without district", ErrInvalidSelection)
	case !s.AgeRange.Valid():
		return fmt.Errorf("%w: unknown age range %q", ErrInvalidSelection, s.AgeRange)
	case !s.Gender.Valid():
		return fmt.Errorf("%w: unknown gender %q", ErrInvalidSelection, s.Gender)
	}
	return nil
}

// Query maps the defined fields onto the entries query parameters.
func (s Selection) Query() url.Values {
	q := url.Values{}
	if s.Province != "" {
		q.Set("province", s.Province.String())
	}
	if s.District != "" {
		q.Set("district", s.District.String())
	}
	if s.City != "" {
		q.Set("city", s.City.String())
	}
	if s.AgeRange != "" {
		q.Set("ageRange", string(s.AgeRange))
	}
	if s.Gender != "" {
		q.Set("gender", string(s.Gender))
	}
	return q
}

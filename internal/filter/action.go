package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sl-c19-memorial/memorial-web/internal/geo"
)

// ErrUnknownAction is returned by ParseAction for unrecognised types or enum values.
var ErrUnknownAction = errors.New("filter: unknown action")

// Action is one of Reset, SetProvince, SetDistrict, SetCity, SetAge or SetGender.
type Action interface {
	// Type is the wire name, e.g. "SET_PROVINCE".
	Type() string
	isAction()
}

type Reset struct{}

type SetProvince struct{ ID geo.ID }

type SetDistrict struct{ ID geo.ID }

type SetCity struct{ ID geo.ID }

type SetAge struct{ Range AgeRange }

type SetGender struct{ Gender Gender }

func (Reset) Type() string       { return "RESET" }
func (SetProvince) Type() string { return "SET_PROVINCE" }
func (SetDistrict) Type() string { return "SET_DISTRICT" }
func (SetCity) Type() string     { return "SET_CITY" }
func (SetAge) Type() string      { return "SET_AGE" }
func (SetGender) Type() string   { return "SET_GENDER" }

func (Reset) isAction()       {}
func (SetProvince) isAction() {}
func (SetDistrict) isAction() {}
func (SetCity) isAction()     {}
func (SetAge) isAction()      {}
func (SetGender) isAction()   {}

// Describe returns the field an action targets ("Province", "Reset", ...) and the chosen value.
func Describe(a Action) (field, value string) {
	switch a := a.(type) {
	case Reset:
		return "Reset", ""
	case SetProvince:
		return "Province", a.ID.String()
	case SetDistrict:
		return "District", a.ID.String()
	case SetCity:
		return "City", a.ID.String()
	case SetAge:
		return "Age", string(a.Range)
	case SetGender:
		return "Gender", string(a.Gender)
	default:
		panic(fmt.Sprintf("filter: unhandled action %T", a))
	}
}

// ParseAction decodes the wire form. Both "PROVINCE" and "SET_PROVINCE" spellings are accepted.
func ParseAction(typ, value string) (Action, error) {
	value = strings.TrimSpace(value)
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(typ)), "SET_") {
	case "RESET":
		return Reset{}, nil
	case "PROVINCE":
		return SetProvince{ID: geo.ID(value)}, nil
	case "DISTRICT":
		return SetDistrict{ID: geo.ID(value)}, nil
	case "CITY":
		return SetCity{ID: geo.ID(value)}, nil
	case "AGE":
		r := AgeRange(value)
		if r == "" || !r.Valid() {
			return nil, fmt.Errorf("%w: age range %q", ErrUnknownAction, value)
		}
		return SetAge{Range: r}, nil
	case "GENDER":
		g := Gender(value)
		if g == "" || !g.Valid() {
			return nil, fmt.Errorf("%w: gender %q", ErrUnknownAction, value)
		}
		return SetGender{Gender: g}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, typ)
	}
}

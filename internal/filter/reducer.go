package filter

import "fmt"

// Reduce applies a to s. It is pure; every result has Initial=false.
//
// Province changes clear district and city, district changes clear city. A district chosen with
// no province, or a city with no district, is dropped so the cascade rule holds for any sequence.
func Reduce(s Selection, a Action) Selection {
	next := s
	next.Initial = false

	switch a := a.(type) {
	case Reset:
		return Selection{}
	case SetProvince:
		next.Province = a.ID
		next.District = ""
		next.City = ""
	case SetDistrict:
		next.District = a.ID
		next.City = ""
		if next.Province == "" {
			next.District = ""
		}
	case SetCity:
		next.City = a.ID
		if next.District == "" {
			next.City = ""
		}
	case SetAge:
		next.AgeRange = a.Range
	case SetGender:
		next.Gender = a.Gender
	default:
		panic(fmt.Sprintf("filter: unhandled action %T", a))
	}
	return next
}

// Package place defines the harvested entity and its field catalog.
package place

import "strconv"

// Unknown is rendered for any textual field that could not be resolved.
const Unknown = "N/A"

// Text is an optional textual value. The zero value is absent.
type Text struct {
	Value string
	OK    bool
}

// Found wraps a resolved value.
func Found(v string) Text {
	return Text{Value: v, OK: true}
}

// Missing returns an absent value.
func Missing() Text {
	return Text{}
}

// String renders the value, or Unknown when absent.
func (t Text) String() string {
	if !t.OK {
		return Unknown
	}
	return t.Value
}

// Pair is one key/value entry of a structured sub-record.
type Pair struct {
	Key   string
	Value string
}

// ImageSet is the ordered, de-duplicated set of image URLs for a place.
type ImageSet []string

// Reviewer is one reviewer sub-record.
type Reviewer struct {
	Name       Text
	ProfileURL Text
}

// Pairs returns the reviewer fields in display order.
func (r Reviewer) Pairs() []Pair {
	return []Pair{
		{Key: "name", Value: r.Name.String()},
		{Key: "profile_url", Value: r.ProfileURL.String()},
	}
}

// Reviewers is a list of reviewer sub-records.
type Reviewers []Reviewer

// Items returns each reviewer as an ordered list of pairs.
func (rs Reviewers) Items() [][]Pair {
	out := make([][]Pair, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Pairs())
	}
	return out
}

// StarRow is one line of the star-rating histogram.
type StarRow struct {
	Stars int
	Label Text
}

// StarBreakdown is the star-rating histogram, highest rating first.
type StarBreakdown []StarRow

// Entries returns the histogram as ordered pairs keyed by star count.
func (b StarBreakdown) Entries() []Pair {
	out := make([]Pair, 0, len(b))
	for _, row := range b {
		out = append(out, Pair{Key: strconv.Itoa(row.Stars), Value: row.Label.String()})
	}
	return out
}

// Place is one harvested listing entity. It is built once per extracted
// candidate and never mutated afterwards.
type Place struct {
	Name          Text
	Category      Text
	Rating        Text
	ReviewsCount  int
	Address       Text
	PlusCode      Text
	LocatedIn     Text
	Phone         Text
	Website       Text
	OpenStatus    Text
	Latitude      Text
	Longitude     Text
	MapsURL       string
	Images        ImageSet
	StarBreakdown StarBreakdown
	Reviewers     Reviewers
}

// Field is a named value of a Place.
type Field struct {
	Name  string
	Value any
}

// Fields returns every field of the place in catalog order.
func (p Place) Fields() []Field {
	return []Field{
		{Name: FieldName, Value: p.Name},
		{Name: FieldCategory, Value: p.Category},
		{Name: FieldRating, Value: p.Rating},
		{Name: FieldReviewsCount, Value: p.ReviewsCount},
		{Name: FieldAddress, Value: p.Address},
		{Name: FieldPlusCode, Value: p.PlusCode},
		{Name: FieldLocatedIn, Value: p.LocatedIn},
		{Name: FieldPhone, Value: p.Phone},
		{Name: FieldWebsite, Value: p.Website},
		{Name: FieldOpenStatus, Value: p.OpenStatus},
		{Name: FieldLatitude, Value: p.Latitude},
		{Name: FieldLongitude, Value: p.Longitude},
		{Name: FieldMapsURL, Value: p.MapsURL},
		{Name: FieldImages, Value: p.Images},
		{Name: FieldStarBreakdown, Value: p.StarBreakdown},
		{Name: FieldReviewers, Value: p.Reviewers},
	}
}

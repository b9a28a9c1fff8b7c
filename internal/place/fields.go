package place

import (
	"fmt"
	"slices"
	"strings"
)

// Field names, which double as persisted column names.
const (
	FieldName          = "Name"
	FieldCategory      = "Category"
	FieldRating        = "Rating"
	FieldReviewsCount  = "Reviews Count"
	FieldAddress       = "Address"
	FieldPlusCode      = "Plus Code"
	FieldLocatedIn     = "Located In"
	FieldPhone         = "Phone"
	FieldWebsite       = "Website"
	FieldOpenStatus    = "Open Status"
	FieldLatitude      = "Latitude"
	FieldLongitude     = "Longitude"
	FieldMapsURL       = "Maps URL"
	FieldImages        = "Images"
	FieldStarBreakdown = "Star Breakdown"
	FieldReviewers     = "Reviewers"
)

// Catalog lists every field name in canonical order.
func Catalog() []string {
	return []string{
		FieldName, FieldCategory, FieldRating, FieldReviewsCount,
		FieldAddress, FieldPlusCode, FieldLocatedIn, FieldPhone,
		FieldWebsite, FieldOpenStatus, FieldLatitude, FieldLongitude,
		FieldMapsURL, FieldImages, FieldStarBreakdown, FieldReviewers,
	}
}

// IsIdentity reports whether the field participates in the identity key.
func IsIdentity(name string) bool {
	return name == FieldName || name == FieldAddress
}

// ParseSelection turns a comma-separated list of field names into a
// selection. Unknown names are returned separately so callers can report
// them. An empty input selects the whole catalog.
func ParseSelection(raw string) (selected []string, unknown []string, err error) {
	if strings.TrimSpace(raw) == "" {
		return Catalog(), nil, nil
	}
	catalog := Catalog()
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if !slices.Contains(catalog, name) {
			unknown = append(unknown, name)
			continue
		}
		if !slices.Contains(selected, name) {
			selected = append(selected, name)
		}
	}
	if len(selected) == 0 {
		return nil, unknown, fmt.Errorf("no valid fields selected from %q", raw)
	}
	return selected, unknown, nil
}

// Select keeps the fields named in selection plus the identity fields,
// preserving the order of fields. A nil selection keeps everything.
func Select(fields []Field, selection []string) []Field {
	if selection == nil {
		return fields
	}
	out := make([]Field, 0, len(selection)+2)
	for _, f := range fields {
		if IsIdentity(f.Name) || slices.Contains(selection, f.Name) {
			out = append(out, f)
		}
	}
	return out
}

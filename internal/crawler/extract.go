package crawler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/places-crawler/internal/place"
)

var (
	reviewCountPattern = regexp.MustCompile(`([\d.]+)\s*([km]?)`)
	latLngPattern      = regexp.MustCompile(`@([-0-9.]+),([-0-9.]+)`)
	imageSizePattern   = regexp.MustCompile(`w\d+-h\d+`)
)

const highResSize = "w2000-h2000"

// ParseReviewCount converts a review-count label such as "(1,234)" or
// "2.5K reviews" to an integer. Unparseable input yields zero.
func ParseReviewCount(text string) int {
	text = strings.TrimSpace(strings.ReplaceAll(strings.ToLower(text), ",", ""))
	if text == "" {
		return 0
	}
	m := reviewCountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k":
		n *= 1_000
	case "m":
		n *= 1_000_000
	}
	return int(n)
}

// ExtractLatLng reads the "@lat,lng" pair embedded in a canonical listing
// URL. Both values are missing when the pattern is absent.
func ExtractLatLng(rawURL string) (lat, lng place.Text) {
	m := latLngPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return place.Missing(), place.Missing()
	}
	return place.Found(m[1]), place.Found(m[2])
}

// CleanImageURL drops low-resolution thumbnails and rewrites sized image
// URLs to the high-resolution variant. ok is false for dropped URLs.
func CleanImageURL(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}
	if strings.Contains(rawURL, "w120") || strings.Contains(rawURL, "h120") {
		return "", false
	}
	return imageSizePattern.ReplaceAllString(rawURL, highResSize), true
}

// CollectImages cleans raw image URLs, de-duplicates them in first-seen
// order and keeps at most limit entries. Thumbnails are removed before the
// cap applies.
func CollectImages(raw []string, limit int) place.ImageSet {
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make(place.ImageSet, 0, min(len(raw), limit))
	for _, r := range raw {
		if len(out) >= limit {
			break
		}
		u, ok := CleanImageURL(r)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

package source

import "fmt"

// Selector locates a field on the open candidate. An empty Attr reads the
// element text.
type Selector struct {
	CSS  string
	Attr string
}

// DOM selectors shared by the live and snapshot sources.
const (
	SearchBoxSelector       = "#searchboxinput"
	CardSelector            = `a[href*="/maps/place"]`
	FeedSelector            = `div[role="feed"]`
	GalleryImageSelector    = "button.K4UgGe img[src]"
	ReviewImageSelector     = `button.Tya61d[style*="background-image"]`
	StreetViewSelector      = `img[src*="streetviewpixels"]`
	ReviewBlockSelector     = "div.jftiEf"
	ReviewerNameSelector    = "div.d4r55.fontTitleMedium"
	ReviewerProfileSelector = "button.al6Kxe"
	ReviewerProfileAttr     = "data-href"
)

var selectors = map[Field]Selector{
	Name:        {CSS: "h1.DUwDvf"},
	Category:    {CSS: `button[jsaction*="category"]`},
	Rating:      {CSS: "div.fontDisplayLarge"},
	ReviewsText: {CSS: "button.GQjSyb span"},
	Address:     {CSS: `button[data-item-id="address"] .Io6YTe`},
	PlusCode:    {CSS: `button[data-item-id="oloc"] .Io6YTe`},
	LocatedIn:   {CSS: `button[data-item-id="locatedin"] .Io6YTe`},
	Phone:       {CSS: `button[data-item-id*="phone"] .Io6YTe`},
	Website:     {CSS: `a[data-item-id*="authority"]`, Attr: "href"},
	OpenStatus:  {CSS: `button[data-item-id^="oh"] .Io6YTe`},
}

// SelectorFor returns the selector of a field.
func SelectorFor(f Field) (Selector, bool) {
	if s, ok := selectors[f]; ok {
		return s, true
	}
	for stars := 1; stars <= 5; stars++ {
		if f == StarRow(stars) {
			return Selector{CSS: fmt.Sprintf(`tr[aria-label^="%d stars"]`, stars), Attr: "aria-label"}, true
		}
	}
	return Selector{}, false
}

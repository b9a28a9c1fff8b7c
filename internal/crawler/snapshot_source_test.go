package crawler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/places-crawler/internal/source/snapshot"
)

func galleryPanel(photos, thumbs int) string {
	const url = "https://www.google.com/maps/place/Gallery+Cafe/@21.17,72.83,17z"
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><div role="feed"><a href=%q>Gallery Cafe</a></div>`, url)
	fmt.Fprintf(&b, `<section data-snapshot-place data-url=%q><h1 class="DUwDvf">Gallery Cafe</h1>`, url)
	for i := range thumbs {
		fmt.Fprintf(&b, `<button class="K4UgGe"><img src="https://lh5.example.com/p/thumb%d=w120-h120-k-no"></button>`, i)
	}
	for i := range photos {
		fmt.Fprintf(&b, `<button class="K4UgGe"><img src="https://lh5.example.com/p/photo%d=w408-h306-k-no"></button>`, i)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

func TestCursorImagesCapAfterThumbnailFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		photos int
		thumbs int
		want   int
	}{
		{name: "thumbnails ahead of a full gallery", photos: 23, thumbs: 2, want: 20},
		{name: "short gallery", photos: 5, thumbs: 2, want: 5},
		{name: "only thumbnails", photos: 0, thumbs: 2, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := snapshot.New(strings.NewReader(galleryPanel(tt.photos, tt.thumbs)), 0)
			require.NoError(t, err)
			e, _ := newTestEngine(t, src, testConfig())

			c, err := e.Crawl(context.Background(), Request{Query: "cafe", MaxPlaces: 1})
			require.NoError(t, err)
			p, err := c.Next(context.Background())
			require.NoError(t, err)

			require.Len(t, p.Images, tt.want)
			for i, u := range p.Images {
				assert.NotContains(t, u, "w120")
				assert.Contains(t, u, fmt.Sprintf("/photo%d=", i))
			}
		})
	}
}

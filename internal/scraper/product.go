package scraper

import (
	"net/url"
	"strings"
	"unicode"
)

// Product is one listing returned by the scraping backend.
type Product struct {
	Title         string  `json:"title"`
	PriceCurrent  string  `json:"price_current"`
	PriceOriginal *string `json:"price_original"`
	Seller        string  `json:"seller"`
	RatingScore   *string `json:"rating_score"`
	ReviewCount   *string `json:"review_count"`
	ProductLink   *string `json:"product_link"`
	ImageURL      *string `json:"image_url"`
}

// Image returns the product image, or a placeholder seeded by the title
// with whitespace removed.
func (p Product) Image() string {
	if v := value(p.ImageURL); v != "" {
		return v
	}
	seed := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, p.Title)
	return "https://picsum.photos/seed/" + url.PathEscape(seed) + "/400/400"
}

// Link returns the product page, or "#" when there is none.
func (p Product) Link() string {
	if v := value(p.ProductLink); v != "" {
		return v
	}
	return "#"
}

// OriginalPrice returns the pre-discount price or "".
func (p Product) OriginalPrice() string { return value(p.PriceOriginal) }

// Rating returns the rating score or "".
func (p Product) Rating() string { return value(p.RatingScore) }

// Reviews returns the review count or "".
func (p Product) Reviews() string { return value(p.ReviewCount) }

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

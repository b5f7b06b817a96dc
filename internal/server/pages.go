package server

import (
	"embed"
	"html/template"

	"github.com/hession/shopsearch/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageTemplate   = "page.html"
	pageTitle      = "AI Shopping Search"
	refreshSeconds = 2
	skeletonCards  = 8
)

func parseTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// pageView is what the page template renders.
type pageView struct {
	search.Snapshot
	Title   string
	Refresh int

	Skeleton      bool
	SkeletonCards []struct{}
	Grid          bool
	Empty         bool
}

func newPageView(snap search.Snapshot) pageView {
	v := pageView{
		Snapshot: snap,
		Title:    pageTitle,
		Refresh:  refreshSeconds,
		Skeleton: snap.Loading && snap.ParsedQuery == nil,
		Grid:     !snap.Loading && len(snap.Products) > 0,
		Empty:    !snap.Loading && snap.Error == "" && snap.Warning == "" && len(snap.Products) == 0 && snap.ParsedQuery == nil,
	}
	if v.Skeleton {
		v.SkeletonCards = make([]struct{}, skeletonCards)
	}
	return v
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/history"
	"github.com/hession/shopsearch/internal/search"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// EmptyState is shown before the first search.
const EmptyState = "Let's find something amazing."

// PhaseMessage returns the progress line for an in-flight phase, or "".
func PhaseMessage(p search.Phase) string {
	switch p {
	case search.PhaseValidating:
		return "Checking your query..."
	case search.PhaseInterpreting:
		return "Understanding your request..."
	case search.PhaseFetching:
		return "Fetching live product listings..."
	case search.PhaseSummarizing:
		return "Summarizing the results..."
	default:
		return ""
	}
}

// ProgressPrinter returns a state handler that prints one line per
// in-flight phase.
func ProgressPrinter(w io.Writer) search.StateHandler {
	return func(snap search.Snapshot) {
		if msg := PhaseMessage(snap.Phase); msg != "" {
			fmt.Fprintf(w, "%s%s%s\n", colorGray, msg, colorReset)
		}
	}
}

// PrintSnapshot renders a session snapshot: banners, analysis, summary
// and the product list.
func PrintSnapshot(w io.Writer, snap search.Snapshot) {
	if snap.Warning != "" {
		fmt.Fprintf(w, "%s⚠️  %s%s\n", colorYellow, snap.Warning, colorReset)
	}
	if snap.Error != "" {
		fmt.Fprintf(w, "%s❌ %s%s\n", colorRed, snap.Error, colorReset)
	}
	if snap.Loading {
		if msg := PhaseMessage(snap.Phase); msg != "" {
			fmt.Fprintf(w, "%s%s%s\n", colorGray, msg, colorReset)
		}
	}

	if p := snap.ParsedQuery; p != nil {
		fmt.Fprintf(w, "\n%s✨ AI Analysis%s\n", colorCyan, colorReset)
		fmt.Fprintf(w, "  Search for:    %s%s%s\n", colorBlue, p.BaseQuery, colorReset)
		if len(p.Filters) > 0 {
			fmt.Fprintf(w, "  Apply filters: %s%s%s\n", colorCyan, strings.Join(p.Filters, ", "), colorReset)
		}
		if snap.Summary != "" {
			fmt.Fprintf(w, "\n  💡 %s\n", snap.Summary)
		}
	}

	if !snap.Loading && len(snap.Products) > 0 {
		fmt.Fprintln(w)
		for i, p := range snap.Products {
			fmt.Fprintf(w, "%2d. %s\n", i+1, truncateForDisplay(p.Title, 80))

			details := []string{p.Seller, colorGreen + p.PriceCurrent + colorReset}
			if orig := p.OriginalPrice(); orig != "" {
				details = append(details, "was "+orig)
			}
			if rating := p.Rating(); rating != "" {
				if reviews := p.Reviews(); reviews != "" {
					rating += " (" + reviews + ")"
				}
				details = append(details, "★ "+rating)
			}
			fmt.Fprintf(w, "    %s\n", strings.Join(nonEmpty(details), " | "))
			fmt.Fprintf(w, "    %s%s%s\n", colorGray, p.Link(), colorReset)
		}
	}

	if !snap.Loading && snap.Error == "" && snap.Warning == "" && len(snap.Products) == 0 && snap.ParsedQuery == nil {
		fmt.Fprintf(w, "%s%s%s\n", colorGray, EmptyState, colorReset)
	}
}

// PrintFilters prints the catalog one category per line.
func PrintFilters(w io.Writer, filters catalog.AvailableFilters) {
	if filters.Len() == 0 {
		fmt.Fprintf(w, "%sNo filters available%s\n", colorGray, colorReset)
		return
	}
	for _, c := range filters {
		fmt.Fprintf(w, "%s%s:%s %s\n", colorCyan, c.Name, colorReset, strings.Join(c.Tags, ", "))
	}
}

// PrintHistory prints recent searches, newest first.
func PrintHistory(w io.Writer, records []*history.Record) {
	if len(records) == 0 {
		fmt.Fprintf(w, "%sNo searches yet%s\n", colorGray, colorReset)
		return
	}
	for _, rec := range records {
		status := colorGreen + "✓" + colorReset
		detail := fmt.Sprintf("%d products", rec.ProductCount)
		if !rec.Succeeded() {
			status = colorRed + "✗" + colorReset
			detail = truncateForDisplay(rec.Error, 60)
		}
		fmt.Fprintf(w, "%s %s%s%s  %s  %s(%s)%s\n",
			status,
			colorGray, rec.CreatedAt.Local().Format("2006-01-02 15:04"), colorReset,
			truncateForDisplay(rec.Query, 50),
			colorGray, detail, colorReset)
	}
}

// truncateForDisplay flattens newlines and cuts text to maxLen runes.
func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

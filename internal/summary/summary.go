// Package summary produces the one-sentence commentary shown above results.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/hession/shopsearch/internal/llm"
	"github.com/hession/shopsearch/internal/scraper"
	"go.uber.org/zap"
)

// Fallback is returned whenever a summary cannot be produced.
const Fallback = "Here are the products I found for you!"

// NoResults is shown instead of a summary when a search finds nothing.
const NoResults = "I couldn't find any products matching your specific criteria. Try broadening your search!"

// Digest is the reduced view of a product sent to the model.
type Digest struct {
	Seller string  `json:"seller"`
	Price  string  `json:"price"`
	Rating *string `json:"rating"`
}

// Digests projects products to seller, price and rating.
func Digests(products []scraper.Product) []Digest {
	out := make([]Digest, 0, len(products))
	for _, p := range products {
		out = append(out, Digest{Seller: p.Seller, Price: p.PriceCurrent, Rating: p.RatingScore})
	}
	return out
}

// Summarizer asks a model for a short, friendly sentence.
type Summarizer struct {
	gen    llm.Generator
	prompt *template.Template
	log    *zap.Logger
}

// New parses promptTemplate, which receives .Products as compact JSON.
func New(gen llm.Generator, promptTemplate string, log *zap.Logger) (*Summarizer, error) {
	tmpl, err := template.New("summarize").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summarize prompt: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Summarizer{gen: gen, prompt: tmpl, log: log}, nil
}

// Summarize never fails; any problem yields Fallback.
func (s *Summarizer) Summarize(ctx context.Context, products []scraper.Product) string {
	prompt, err := s.render(products)
	if err != nil {
		s.log.Error("failed to build summary prompt", zap.Error(err))
		return Fallback
	}

	text, err := s.gen.GenerateText(ctx, prompt)
	if err != nil {
		s.log.Error("failed to summarize products", zap.Int("products", len(products)), zap.Error(err))
		return Fallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback
	}
	return text
}

func (s *Summarizer) render(products []scraper.Product) (string, error) {
	data, err := json.Marshal(Digests(products))
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := s.prompt.Execute(&buf, map[string]string{"Products": string(data)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

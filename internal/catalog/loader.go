package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Loader reads the catalog document once, from a file path or an
// http(s) URL such as the scraper's GET /filters endpoint.
type Loader struct {
	source string
	store  *Store
	http   *resty.Client
	log    *zap.Logger
}

// NewLoader creates a loader that fills store from source.
func NewLoader(source string, store *Store, timeout time.Duration, log *zap.Logger) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		source: strings.TrimSpace(source),
		store:  store,
		http: resty.New().
			SetHeader("Accept", "application/json").
			SetTimeout(timeout),
		log: log,
	}
}

// Load performs the single read. On failure the store degrades to an empty
// catalog with a warning and the cause is returned for logging; callers
// must not treat it as fatal. Load never retries.
func (l *Loader) Load(ctx context.Context) error {
	filters, err := l.read(ctx)
	if err != nil {
		l.store.Degrade()
		l.log.Warn("filter catalog unavailable, continuing with empty catalog",
			zap.String("source", l.source), zap.Error(err))
		return err
	}
	l.store.Set(filters)
	l.log.Info("filter catalog loaded",
		zap.String("source", l.source),
		zap.Strings("categories", filters.Categories()),
		zap.Int("tags", filters.Len()))
	return nil
}

func (l *Loader) read(ctx context.Context) (AvailableFilters, error) {
	var (
		data []byte
		err  error
	)
	if isURL(l.source) {
		data, err = l.fetch(ctx)
	} else {
		data, err = os.ReadFile(l.source)
		if err != nil {
			err = fmt.Errorf("failed to read catalog file: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var filters AvailableFilters
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if filters == nil {
		return nil, fmt.Errorf("failed to parse catalog: document is null")
	}
	return filters, nil
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	resp, err := l.http.R().SetContext(ctx).Get(l.source)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog request failed with status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

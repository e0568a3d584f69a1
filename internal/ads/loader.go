// Package ads resolves the sponsored content of an experience: it detects
// sponsored cards and placeholders in a deck, fetches candidate cards from
// the content catalog and splices them in without duplicating a card.
package ads

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adloader/internal/catalog"
	"adloader/internal/content"
	"adloader/internal/freshcache"
	"adloader/pkg/logger"
)

// Catalog is the read side of the content catalog.
type Catalog interface {
	GetCard(ctx context.Context, id string, params content.Query) (*content.Card, error)
	FindCards(ctx context.Context, params content.Query) ([]*content.Card, error)
}

// cardKey is the key-forming part of a single-card lookup.
type cardKey struct {
	ID     string        `json:"id"`
	Params content.Query `json:"params"`
}

type Loader struct {
	cfg     Config
	catalog Catalog
	log     zerolog.Logger
	cards   *freshcache.Cache[cardKey, *content.Card]
}

type Option func(*options)

type options struct {
	catalog Catalog
	log     zerolog.Logger
	metrics freshcache.Metrics
	now     func() time.Time
}

// WithCatalog replaces the HTTP catalog client built from the config.
func WithCatalog(c Catalog) Option {
	return func(o *options) { o.catalog = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithCacheMetrics(m freshcache.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the clock the card cache ages entries with.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewLoader(cfg Config, opts ...Option) *Loader {
	cfg = cfg.Normalize()
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = catalog.NewClient(cfg.EnvRoot, cfg.CardEndpoint, cfg.HTTPTimeout)
	}

	l := &Loader{cfg: cfg, catalog: o.catalog, log: o.log}
	l.cards = freshcache.New(l.fetchCard, freshcache.Config[*content.Card]{
		Name:       "cards",
		FreshTTL:   cfg.CardCacheTTLs.Fresh,
		MaxTTL:     cfg.CardCacheTTLs.Max,
		MaxEntries: cfg.CardCacheSize,
		Extract:    (*content.Card).Clone,
		Now:        o.now,
		Logger:     &l.log,
		Metrics:    o.metrics,
	})
	return l
}

func (l *Loader) Config() Config {
	return l.cfg
}

// traced binds traceID and the loader's logger to ctx unless ctx already
// carries them.
func (l *Loader) traced(ctx context.Context, traceID string) context.Context {
	if traceID == "" && zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled {
		return ctx
	}
	if traceID != "" && logger.TraceID(ctx) == traceID {
		return ctx
	}
	return logger.WithTrace(ctx, l.log, traceID)
}

// fetchCard is the uncached single-card upstream fetch.
func (l *Loader) fetchCard(ctx context.Context, key cardKey) (*content.Card, error) {
	return l.catalog.GetCard(ctx, key.ID, key.Params)
}

// lookupCard is fetchCard behind the card cache; traceID is not part of the
// key.
func (l *Loader) lookupCard(ctx context.Context, id string, params content.Query, traceID string) (*content.Card, error) {
	if len(params) == 0 {
		params = nil
	}
	return l.cards.Get(l.traced(ctx, traceID), cardKey{ID: id, Params: params})
}

// GetCard returns one card. Preview lookups skip the cache so they always
// reflect the catalog's latest state. A card the catalog does not know is
// (nil, nil).
func (l *Loader) GetCard(ctx context.Context, id string, params content.Query, traceID string) (*content.Card, error) {
	if params.Bool("preview") {
		return l.fetchCard(l.traced(ctx, traceID), cardKey{ID: id, Params: params})
	}
	return l.lookupCard(ctx, id, params, traceID)
}

// FindCards searches for up to amount random cards of a campaign. Searches
// are never cached; every call gets its own sample.
func (l *Loader) FindCards(ctx context.Context, campaignID string, params content.Query, amount int, traceID string) ([]*content.Card, error) {
	if amount <= 0 {
		return []*content.Card{}, nil
	}
	q := params.Merge(content.Query{
		"campaign": campaignID,
		"random":   "true",
		"limit":    strconv.Itoa(amount),
	})
	return l.catalog.FindCards(l.traced(ctx, traceID), q)
}

// FindCard returns a single card of params["campaign"] matching lookup, or
// nil when the search comes back empty.
func (l *Loader) FindCard(ctx context.Context, params, lookup content.Query, traceID string) (*content.Card, error) {
	cards, err := l.FindCards(ctx, params["campaign"], lookup, 1, traceID)
	if err != nil || len(cards) == 0 {
		return nil, err
	}
	return cards[0], nil
}

// FillPlaceholders replaces the placeholders of exp with cards found for
// campaignID, skipping any candidate already in the deck, and strips the
// placeholders left over. exp is mutated and returned. On error the deck is
// left untouched.
func (l *Loader) FillPlaceholders(ctx context.Context, exp *content.Experience, categories []string, campaignID, traceID string) (*content.Experience, error) {
	ctx = l.traced(ctx, traceID)
	placeholders := Placeholders(exp)

	lookup := exp.Params.Query()
	lookup["experience"] = exp.ID
	if len(categories) > 0 {
		lookup["categories"] = strings.Join(categories, ",")
	}

	cards, err := l.FindCards(ctx, campaignID, lookup, len(placeholders), traceID)
	if err != nil {
		return nil, err
	}

	exp.Data.Deck = splice(exp.Data.Deck, placeholders, cards)
	RemovePlaceholders(exp)

	zerolog.Ctx(ctx).Debug().
		Str("experience", exp.ID).
		Str("campaign", campaignID).
		Int("placeholders", len(placeholders)).
		Int("candidates", len(cards)).
		Msg("filled placeholders")
	return exp, nil
}

// LoadAds resolves the sponsored slots of exp. An experience without
// sponsored cards or placeholders is returned as is without any lookup.
// A nil categories falls back to the experience's own categories.
func (l *Loader) LoadAds(ctx context.Context, exp *content.Experience, categories []string, campaignID, traceID string) (*content.Experience, error) {
	if !HasAds(exp) {
		return exp, nil
	}
	if categories == nil {
		categories = exp.Categories
	}
	if categories == nil {
		categories = []string{}
	}
	return l.FillPlaceholders(ctx, exp, categories, campaignID, traceID)
}

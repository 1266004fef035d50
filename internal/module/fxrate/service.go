package fxrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clickcart/server/internal/shared/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKey = "fxrate:latest"

// RateTable holds foreign-exchange rates relative to a base currency.
type RateTable struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// staticRates are the compiled fallback used when the external source and
// the cache are both unavailable. Values are approximate and relative to EUR.
var staticRates = RateTable{
	Base: "EUR",
	Date: "static",
	Rates: map[string]float64{
		"EUR": 1.0,
		"USD": 1.09,
		"GBP": 0.85,
		"JPY": 160.0,
		"CAD": 1.47,
		"AUD": 1.62,
		"CHF": 0.94,
	},
}

// Service fetches and caches currency rates. Failures never propagate:
// callers always receive a usable table.
type Service struct {
	cfg        config.RatesConfig
	httpClient *http.Client
	redis      redis.UniversalClient
	logger     *zap.Logger
}

// NewService creates a new currency rate service. The redis client may be
// nil, in which case caching is skipped.
func NewService(cfg config.RatesConfig, httpClient *http.Client, redisClient redis.UniversalClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		httpClient: httpClient,
		redis:      redisClient,
		logger:     logger,
	}
}

// Rates returns the current rate table: cache first, then the external
// source, then static defaults.
func (s *Service) Rates(ctx context.Context) *RateTable {
	if table := s.fromCache(ctx); table != nil {
		return table
	}

	table, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("rate fetch failed, using static defaults", zap.Error(err))
		return &staticRates
	}

	s.toCache(ctx, table)
	return table
}

// Convert converts an amount in minor units between currencies using the
// current table. Unknown currencies convert 1:1.
func (s *Service) Convert(ctx context.Context, amount int64, from, to string) int64 {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount
	}

	table := s.Rates(ctx)
	fromRate, okFrom := table.Rates[from]
	toRate, okTo := table.Rates[to]
	if !okFrom || !okTo || fromRate == 0 {
		s.logger.Warn("unknown currency in conversion",
			zap.String("from", from),
			zap.String("to", to),
		)
		return amount
	}

	converted := float64(amount) / fromRate * toRate
	return int64(converted + 0.5)
}

func (s *Service) fetch(ctx context.Context) (*RateTable, error) {
	url := fmt.Sprintf("%s?base=%s", s.cfg.SourceURL, s.cfg.BaseCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source returned %d", resp.StatusCode)
	}

	var table RateTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	if len(table.Rates) == 0 {
		return nil, fmt.Errorf("rate source returned empty table")
	}

	// The source omits the base currency from its own table.
	if _, ok := table.Rates[table.Base]; !ok && table.Base != "" {
		table.Rates[table.Base] = 1.0
	}

	return &table, nil
}

func (s *Service) fromCache(ctx context.Context) *RateTable {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return nil
	}
	var table RateTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil
	}
	return &table
}

func (s *Service) toCache(ctx context.Context, table *RateTable) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(table)
	if err != nil {
		return
	}
	ttl := s.cfg.CacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	if err := s.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		s.logger.Warn("rate cache write failed", zap.Error(err))
	}
}

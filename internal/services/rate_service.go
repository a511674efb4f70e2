package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hubp2p/exchange-service/internal/infrastructure/redis"
	pkgerrors "github.com/hubp2p/exchange-service/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Markup over the base market rate: R$0.05 fixed plus 4%.
var (
	fixedMarkup   = decimal.RequireFromString("0.05")
	percentMarkup = decimal.RequireFromString("0.04")

	// fallbackBaseRate keeps the quote preview rendering when the market API
	// is down. It is display-only: Snapshot never returns it and transaction
	// creation never persists it.
	fallbackBaseRate = decimal.RequireFromString("5.70")
)

const (
	baseRateCacheKey = "rates:usd_brl"
	btcRateCacheKey  = "rates:btc_usd"
)

// MarketSource fetches raw market rates from the external providers.
type MarketSource interface {
	BaseRate(ctx context.Context) (decimal.Decimal, error)
	BTCUSDRate(ctx context.Context) (decimal.Decimal, error)
}

// Quote is an advisory, time-boxed preview. Clients refresh it every 30
// seconds until the user commits; it is never binding.
type Quote struct {
	BaseRate    decimal.Decimal     `json:"base_rate"`
	FinalRate   decimal.Decimal     `json:"final_rate"`
	DisplayRate decimal.Decimal     `json:"display_rate"`
	AmountBRL   decimal.Decimal     `json:"amount_brl"`
	AmountUSD   decimal.Decimal     `json:"amount_usd"`
	AmountBTC   decimal.NullDecimal `json:"amount_btc,omitempty"`
	Fallback    bool                `json:"fallback"`
	FetchedAt   time.Time           `json:"fetched_at"`
}

// RateSnapshot is the authoritative rate frozen into a transaction at
// creation time. It is never produced from the fallback constant.
type RateSnapshot struct {
	BaseRate  decimal.Decimal
	FinalRate decimal.Decimal
}

type RateService interface {
	// GetQuote never fails on a market-API outage; it degrades to the
	// fallback constant and marks the quote accordingly.
	GetQuote(ctx context.Context, amountBRL decimal.Decimal) (*Quote, error)
	// Snapshot fails loudly when no authoritative rate is available.
	Snapshot(ctx context.Context) (*RateSnapshot, error)
}

type rateService struct {
	source   MarketSource
	redis    redis.RedisClient
	cacheTTL time.Duration
}

func NewRateService(source MarketSource, redisClient redis.RedisClient, cacheTTL time.Duration) *rateService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &rateService{source: source, redis: redisClient, cacheTTL: cacheTTL}
}

// FinalRate applies the markup: base + 0.05 + base*0.04.
func FinalRate(base decimal.Decimal) decimal.Decimal {
	return base.Add(fixedMarkup).Add(base.Mul(percentMarkup))
}

// ConvertBrlToUsd divides by the final rate, rounded to cents.
func ConvertBrlToUsd(brl, finalRate decimal.Decimal) decimal.Decimal {
	return brl.DivRound(finalRate, 2)
}

// ConvertUsdToBtc divides by the BTC/USD price, rounded to satoshi precision.
func ConvertUsdToBtc(usd, btcUsd decimal.Decimal) decimal.Decimal {
	return usd.DivRound(btcUsd, 8)
}

func (s *rateService) GetQuote(ctx context.Context, amountBRL decimal.Decimal) (*Quote, error) {
	tracer := otel.Tracer("rate-service")
	ctx, span := tracer.Start(ctx, "GetQuote")
	defer span.End()

	if amountBRL.IsNegative() {
		span.SetStatus(codes.Error, "negative amount")
		return nil, fmt.Errorf("%w: amount must not be negative", pkgerrors.ErrInvalidInput)
	}

	quote := &Quote{AmountBRL: amountBRL, FetchedAt: time.Now().UTC()}

	base, err := s.cachedRate(ctx, baseRateCacheKey, s.source.BaseRate)
	if err != nil {
		// Display-only degradation; the preview stays up, a real
		// transaction will re-validate against a live rate.
		slog.Warn("base rate fetch failed, using fallback for display", "error", err)
		span.RecordError(err)
		base = fallbackBaseRate
		quote.Fallback = true
	}

	quote.BaseRate = base
	quote.FinalRate = FinalRate(base)
	// DisplayRate is cosmetic rounding of the same snapshot, never an
	// independent re-fetch.
	quote.DisplayRate = quote.FinalRate.Round(2)
	quote.AmountUSD = ConvertBrlToUsd(amountBRL, quote.FinalRate)

	btcUsd, err := s.cachedRate(ctx, btcRateCacheKey, s.source.BTCUSDRate)
	if err != nil {
		// Degrade gracefully: the client shows the USDT amount instead.
		slog.Warn("btc rate fetch failed, omitting btc amount", "error", err)
	} else {
		quote.AmountBTC = decimal.NullDecimal{Decimal: ConvertUsdToBtc(quote.AmountUSD, btcUsd), Valid: true}
	}

	return quote, nil
}

func (s *rateService) Snapshot(ctx context.Context) (*RateSnapshot, error) {
	tracer := otel.Tracer("rate-service")
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	base, err := s.cachedRate(ctx, baseRateCacheKey, s.source.BaseRate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate unavailable")
		slog.Error("authoritative rate fetch failed", "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrRateUnavailable, err)
	}
	return &RateSnapshot{BaseRate: base, FinalRate: FinalRate(base)}, nil
}

// cachedRate serves a rate from Redis within the quote window, fetching from
// the market source on a miss. Cache failures fall through to the source.
func (s *rateService) cachedRate(ctx context.Context, key string, fetch func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if cached, err := s.redis.Get(ctx, key); err == nil {
		if rate, parseErr := decimal.NewFromString(cached); parseErr == nil && rate.IsPositive() {
			return rate, nil
		}
	}

	rate, err := fetch(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.redis.Set(ctx, key, rate.String(), s.cacheTTL); err != nil {
		slog.Error("failed to cache rate", "key", key, "error", err)
	}
	return rate, nil
}

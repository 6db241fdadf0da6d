package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/valuation"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// coinIDBySymbol maps the asset symbols strategies report to the price API's
// coin identifiers. Symbols outside this table have no reference price.
var coinIDBySymbol = map[string]string{
	"eth":   "ethereum",
	"weth":  "weth",
	"matic": "matic-network",
	"pol":   "matic-network",
	"arb":   "arbitrum",
	"op":    "optimism",
	"avax":  "avalanche-2",
	"glmr":  "moonbeam",
	"usdc":  "usd-coin",
	"usdt":  "tether",
	"dai":   "dai",
	"wbtc":  "wrapped-bitcoin",
	"link":  "chainlink",
	"aave":  "aave",
	"crv":   "curve-dao-token",
}

// PriceClient resolves USD prices from a CoinGecko-compatible API with a
// Redis read-through cache. A nil cache client disables caching.
type PriceClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

// NewPriceClient creates a price client. cache may be nil.
func NewPriceClient(baseURL string, cache *redis.Client, cacheTTL time.Duration) *PriceClient {
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &PriceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Price returns the USD price for an asset symbol. Unknown symbols fail with
// an error for which valuation.IsPriceNotFound is true.
func (c *PriceClient) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := strings.ToLower(strings.TrimSpace(symbol))
	coinID, ok := coinIDBySymbol[key]
	if !ok {
		return decimal.Zero, valuation.ErrPriceNotFound
	}

	if cached, ok := c.cachedPrice(ctx, key); ok {
		return cached, nil
	}

	price, err := c.fetchPrice(ctx, coinID)
	if err != nil {
		return decimal.Zero, err
	}
	c.storePrice(ctx, key, price)
	return price, nil
}

func (c *PriceClient) cachedPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	raw, err := c.cache.Get(ctx, priceCacheKey(symbol)).Result()
	if err != nil {
		if err != redis.Nil {
			logging.FromContext(ctx).WithError(err).Warn("price cache read failed")
		}
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (c *PriceClient) storePrice(ctx context.Context, symbol string, price decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, priceCacheKey(symbol), price.String(), c.cacheTTL).Err(); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("price cache write failed")
	}
}

func priceCacheKey(symbol string) string {
	return "price:usd:" + symbol
}

func (c *PriceClient) fetchPrice(ctx context.Context, coinID string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, errors.NewInternalError("failed to build price request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return decimal.Zero, errors.NewUpstreamTimeoutError("prices")
		}
		return decimal.Zero, errors.NewUpstreamUnavailableError("prices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, errors.NewUpstreamUnavailableError("prices", fmt.Errorf("rate limited"))
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.NewUpstreamUnavailableError("prices", fmt.Errorf("status %d", resp.StatusCode))
	}

	// {"ethereum":{"usd":3421.52}}
	var body map[string]map[string]json.Number
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return decimal.Zero, errors.NewUpstreamUnavailableError("prices", err)
	}

	quote, ok := body[coinID]
	if !ok {
		return decimal.Zero, valuation.ErrPriceNotFound
	}
	raw, ok := quote["usd"]
	if !ok {
		return decimal.Zero, valuation.ErrPriceNotFound
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, errors.NewUpstreamUnavailableError("prices", err)
	}
	return price, nil
}

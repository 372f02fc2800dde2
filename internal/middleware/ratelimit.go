package middleware

import (
	"fmt"
	"net/http"

	"github.com/benvon/smart-crm/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultRunNowRate allows ten manual cycles per user per minute
const DefaultRunNowRate = "10-M"

// NewRedisLimiterStore returns a limiter store shared by every server replica
func NewRedisLimiterStore(client *redis.Client) (limiter.Store, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "overview_run_now",
		MaxRetry: limiter.DefaultMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	return store, nil
}

// RunNowRateLimit limits run-now requests per target user, in ulule's "<n>-<S|M|H|D>" rate format.
// Requests without a user id route variable are keyed by client IP.
func RunNowRateLimit(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = DefaultRunNowRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid run-now rate %q: %w", rate, err)
	}
	instance := limiter.New(store, parsed)
	keyGetter := func(r *http.Request) string {
		if id, err := request.UserID(r); err == nil {
			return "user:" + id.String()
		}
		return "ip:" + request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler, nil
}

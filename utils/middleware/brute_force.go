package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/utils/cache"
	"github.com/schoolhub-io/schoolhub/utils/response"
)

// Redis key formats for login throttling. IP counters catch spraying across
// accounts; username counters catch a single account being hammered from
// many addresses.
const (
	loginIPAttemptsKey   = "login:attempts:ip:%s"
	loginIPLockKey       = "login:lock:ip:%s"
	loginUserAttemptsKey = "login:attempts:user:%s"
	loginUserLockKey     = "login:lock:user:%s"
)

// BruteForceProtection throttles failed logins using Redis counters
type BruteForceProtection struct {
	redisCache *cache.RedisCache

	// MaxUserAttempts failed logins against one account within the
	// attempt window lock it for UserLockDuration. Overridable from the
	// security.* app settings at startup.
	MaxUserAttempts  int64
	UserLockDuration time.Duration
}

// NewBruteForceProtection creates a new brute force protection instance
func NewBruteForceProtection(redisCache *cache.RedisCache) *BruteForceProtection {
	return &BruteForceProtection{
		redisCache:       redisCache,
		MaxUserAttempts:  5,
		UserLockDuration: 15 * time.Minute,
	}
}

// CheckAndRecordAttempt middleware rejects requests from locked-out IPs
func (b *BruteForceProtection) CheckAndRecordAttempt() fiber.Handler {
	return func(c *fiber.Ctx) error {
		lockKey := fmt.Sprintf(loginIPLockKey, c.IP())

		// Check if IP is locked
		locked, err := b.redisCache.Exists(c.Context(), lockKey)
		if err != nil {
			// If Redis is down, allow the request;
			// don't block legitimate users due to cache issues
			return c.Next()
		}

		if locked {
			// Get TTL for retry time
			ttl, _ := b.redisCache.TTL(c.Context(), lockKey)
			retryAfter := int(ttl.Seconds())
			if retryAfter < 0 {
				retryAfter = 60 // Default to 60 seconds
			}

			c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
		}

		return c.Next()
	}
}

// RecordFailedAttempt records a failed login against both the source IP and
// the target account. IP lockouts escalate with volume; account lockouts use
// the configured threshold.
func (b *BruteForceProtection) RecordFailedAttempt(c *fiber.Ctx, ip, username string) error {
	ctx := c.Context()

	// Account counter first so a locked account stays locked even when the
	// attacker rotates IPs
	if username != "" {
		userAttempts, err := b.redisCache.Increment(ctx, fmt.Sprintf(loginUserAttemptsKey, username))
		if err == nil {
			if userAttempts == 1 {
				b.redisCache.Expire(ctx, fmt.Sprintf(loginUserAttemptsKey, username), 15*time.Minute)
			}
			if userAttempts >= b.MaxUserAttempts {
				b.redisCache.Set(ctx, fmt.Sprintf(loginUserLockKey, username), "locked", b.UserLockDuration)
			}
		}
	}

	attemptKey := fmt.Sprintf(loginIPAttemptsKey, ip)
	attempts, err := b.redisCache.Increment(ctx, attemptKey)
	if err != nil {
		// If Redis is down, just return without blocking
		return nil
	}

	// Set expiry on attempts counter (15 minute window)
	if attempts == 1 {
		b.redisCache.Expire(ctx, attemptKey, 15*time.Minute)
	}

	// Apply progressive lockouts
	var lockDuration time.Duration
	switch {
	case attempts >= 25:
		lockDuration = 24 * time.Hour
	case attempts >= 10:
		lockDuration = 1 * time.Hour
	case attempts >= 5:
		lockDuration = 2 * time.Minute
	default:
		// Less than 5 attempts: no lockout yet
		return nil
	}

	return b.redisCache.Set(ctx, fmt.Sprintf(loginIPLockKey, ip), "locked", lockDuration)
}

// RecordSuccessfulAttempt clears failed attempt state on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(c *fiber.Ctx, ip, username string) error {
	ctx := c.Context()

	b.redisCache.Delete(ctx, fmt.Sprintf(loginIPAttemptsKey, ip))
	b.redisCache.Delete(ctx, fmt.Sprintf(loginIPLockKey, ip))
	if username != "" {
		b.redisCache.Delete(ctx, fmt.Sprintf(loginUserAttemptsKey, username))
		b.redisCache.Delete(ctx, fmt.Sprintf(loginUserLockKey, username))
	}

	return nil
}

// IsUserLocked checks whether an account is currently locked out
func (b *BruteForceProtection) IsUserLocked(c *fiber.Ctx, username string) (bool, error) {
	return b.redisCache.Exists(c.Context(), fmt.Sprintf(loginUserLockKey, username))
}

// IsIPLocked checks if an IP is currently locked
func (b *BruteForceProtection) IsIPLocked(c *fiber.Ctx, ip string) (bool, error) {
	return b.redisCache.Exists(c.Context(), fmt.Sprintf(loginIPLockKey, ip))
}

// GetAttemptCount returns the current attempt count for an IP
func (b *BruteForceProtection) GetAttemptCount(c *fiber.Ctx, ip string) (int, error) {
	val, err := b.redisCache.Get(c.Context(), fmt.Sprintf(loginIPAttemptsKey, ip))
	if err != nil {
		if err == cache.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}

	var count int
	fmt.Sscanf(val, "%d", &count)
	return count, nil
}

// ClearAttempts manually clears attempts for an IP (admin function)
func (b *BruteForceProtection) ClearAttempts(c *fiber.Ctx, ip string) error {
	ctx := c.Context()
	b.redisCache.Delete(ctx, fmt.Sprintf(loginIPAttemptsKey, ip))
	b.redisCache.Delete(ctx, fmt.Sprintf(loginIPLockKey, ip))
	return nil
}

// ClearUserAttempts manually unlocks an account (admin function)
func (b *BruteForceProtection) ClearUserAttempts(c *fiber.Ctx, username string) error {
	ctx := c.Context()
	b.redisCache.Delete(ctx, fmt.Sprintf(loginUserAttemptsKey, username))
	b.redisCache.Delete(ctx, fmt.Sprintf(loginUserLockKey, username))
	return nil
}

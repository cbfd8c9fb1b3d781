package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/metrics"
)

// Metrics records request durations labeled by the matched route template.
// Raw URLs would blow up label cardinality on /courses/:id style paths.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		path := c.Route().Path
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPRequestDuration.
			WithLabelValues(path, c.Method(), strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		return err
	}
}

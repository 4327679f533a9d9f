package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-data-distribution/internal/lamport"
	"github.com/i474232898/weather-data-distribution/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the operator HTTP handlers into the Fiber app. This
// surface is read-only telemetry; the data protocol stays on its own port.
func RegisterRoutes(app *fiber.App, st *store.MemoryStore, clock *lamport.Clock) {
	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		stats := st.Stats()
		return c.JSON(fiber.Map{
			"stations":            stats.Stations,
			"observations":        stats.Observations,
			"producers":           stats.Producers,
			"mostRecentStationId": stats.MostRecentStation,
			"lamportTime":         clock.Current(),
		})
	})

	v1.Get("/peek", func(c *fiber.Ctx) error {
		req, err := parsePeekQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		obs, err := st.Latest(req.Station, req.Clock)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no visible observation for station")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read observation")
		}

		return c.JSON(fiber.Map{
			"station":   req.Station,
			"timestamp": obs.Timestamp,
			"producer":  obs.ProducerID,
			"fields":    obs.Fields,
		})
	})
}

// peekQuery holds query parameters for inspecting a station's visible data.
type peekQuery struct {
	Station string `validate:"required"`
	Clock   int64  `validate:"min=0"`
}

func parsePeekQuery(c *fiber.Ctx) (peekQuery, error) {
	var q peekQuery

	q.Station = c.Query("station")

	clockStr := c.Query("clock")
	if clockStr == "" {
		// No clock given means "everything currently visible".
		q.Clock = int64(^uint64(0) >> 1)
	} else {
		clock, err := strconv.ParseInt(clockStr, 10, 64)
		if err != nil {
			return q, errors.New("invalid clock; must be a non-negative integer")
		}
		q.Clock = clock
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/track-enrichment/internal/pipeline"
	"github.com/i474232898/track-enrichment/internal/store"
	"github.com/i474232898/track-enrichment/internal/track"
)

var validate = validator.New()

const defaultTrackLimit = 1000

// StateSource reports the pipeline driver state.
type StateSource interface {
	State() pipeline.State
}

// ReportSource reads the cycle report history.
type ReportSource interface {
	GetLatest() (store.CycleReport, error)
	GetRange(from, to time.Time) ([]store.CycleReport, error)
}

// TrackSource reads persisted track rows.
type TrackSource interface {
	Tracks(ctx context.Context, trackID string, limit int) ([]track.Row, error)
}

// Sources are the read-only views served by the API. Tracks may be nil.
type Sources struct {
	State   StateSource
	Reports ReportSource
	Tracks  TrackSource
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, src Sources) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	v1.Get("/status", func(c *fiber.Ctx) error {
		resp := fiber.Map{"state": src.State.State()}
		if latest, err := src.Reports.GetLatest(); err == nil {
			resp["lastCycle"] = fiber.Map{
				"id":         latest.ID,
				"result":     latest.Result,
				"finishedAt": latest.FinishedAt,
			}
		}
		return c.JSON(resp)
	})

	v1.Get("/reports/latest", func(c *fiber.Ctx) error {
		report, err := src.Reports.GetLatest()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycle has completed yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch cycle report")
		}
		return c.JSON(report)
	})

	v1.Get("/reports", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reports, err := src.Reports.GetRange(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no cycle reports for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch cycle reports")
		}

		return c.JSON(fiber.Map{
			"from":    req.From,
			"to":      req.To,
			"reports": reports,
		})
	})

	v1.Get("/tracks", func(c *fiber.Ctx) error {
		if src.Tracks == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "track store not configured")
		}
		var req tracksQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, err := src.Tracks.Tracks(c.UserContext(), req.TrackID, req.Limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read tracks")
		}
		if len(rows) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no track rows found")
		}
		return c.JSON(fiber.Map{
			"count": len(rows),
			"rows":  rows,
		})
	})
}

// rangeQuery holds query parameters for the report history endpoint.
type rangeQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// tracksQuery holds query parameters for the track rows endpoint.
type tracksQuery struct {
	TrackID string `validate:"omitempty,max=255"`
	Limit   int    `validate:"gte=1,lte=10000"`
}

func (q *tracksQuery) bind(c *fiber.Ctx) error {
	q.TrackID = c.Query("track_id")
	q.Limit = defaultTrackLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

package httpapi

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/filesystem"

	"github.com/i474232898/weather-dashboard/internal/dashboard"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

//go:embed web
var webFS embed.FS

var (
	validate = validator.New()
	pageTmpl = template.Must(template.ParseFS(webFS, "web/templates/index.html"))
)

// Service is what the routes need from the dashboard aggregator.
type Service interface {
	Trigger(trigger weather.Trigger) string
	HandleGetWeatherData(ctx context.Context, trigger weather.Trigger) weather.Cycle
	Snapshot() dashboard.Dashboard
	Cycles() []weather.Cycle
}

// Options configures optional parts of the HTTP surface.
type Options struct {
	// CycleTimeout bounds POST /api/v1/collect?wait=true.
	CycleTimeout time.Duration
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Service, opts Options) {
	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	app.Use("/static", filesystem.New(filesystem.Config{
		Root:   http.FS(static),
		MaxAge: 3600,
	}))

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	app.Get("/", func(c *fiber.Ctx) error {
		snapshot := service.Snapshot()
		c.Type("html", "utf-8")
		return pageTmpl.Execute(c, pageData{
			Dashboard: snapshot,
			Refresh:   snapshot.Loading(),
		})
	})

	// Button target; the page then polls itself while a column is loading.
	app.Post("/collect", func(c *fiber.Ctx) error {
		service.Trigger(weather.TriggerButton)
		return c.Redirect("/", fiber.StatusSeeOther)
	})

	v1 := app.Group("/api/v1")

	v1.Post("/collect", func(c *fiber.Ctx) error {
		var q collectQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if !q.wait {
			id := service.Trigger(weather.TriggerAPI)
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"cycleId": id,
			})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), opts.cycleTimeout())
		defer cancel()

		cycle := service.HandleGetWeatherData(ctx, weather.TriggerAPI)
		return c.JSON(fiber.Map{
			"cycle":     cycle,
			"dashboard": service.Snapshot(),
		})
	})

	v1.Get("/dashboard", func(c *fiber.Ctx) error {
		return c.JSON(service.Snapshot())
	})

	v1.Get("/dashboard/:mode", func(c *fiber.Ctx) error {
		mode, err := weather.ParseMode(c.Params("mode"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		col, _ := service.Snapshot().Column(mode)
		return c.JSON(col)
	})

	v1.Get("/cycles", func(c *fiber.Ctx) error {
		cycles := service.Cycles()
		return c.JSON(fiber.Map{
			"count":  len(cycles),
			"cycles": cycles,
		})
	})
}

type pageData struct {
	Dashboard dashboard.Dashboard
	Refresh   bool
}

// collectQuery holds query parameters for the collect endpoint.
type collectQuery struct {
	Wait string `validate:"omitempty,boolean"`

	wait bool
}

func (q *collectQuery) bind(c *fiber.Ctx) error {
	q.Wait = c.Query("wait")
	if err := validate.Struct(q); err != nil {
		return err
	}
	if q.Wait != "" {
		q.wait, _ = strconv.ParseBool(q.Wait)
	}
	return nil
}

func (o Options) cycleTimeout() time.Duration {
	if o.CycleTimeout <= 0 {
		return 30 * time.Second
	}
	return o.CycleTimeout
}

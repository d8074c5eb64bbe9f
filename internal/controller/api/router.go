package api

import (
	"net/http"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/controller/api/handlers"
	"github.com/adarshvs/Recon-MCP/internal/core/event"
	"github.com/adarshvs/Recon-MCP/internal/core/job"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

type RouterConfig struct {
	Store  job.Store
	Bus    event.Bus
	Runs   handlers.Runs
	Output handlers.OutputReader
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) huma.API {
	handlers.InitErrors()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT"},
	}))
	e.Use(requestLogger())
	e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/api/v1")
	config := huma.DefaultConfig("Recon Job API", "1.0.0")
	config.Servers = []*huma.Server{{URL: "/api/v1"}}
	config.Info.Description = "Runs ordered recon command plans and streams their output"

	api := humaecho.NewWithGroup(e, v1, config)

	jobsHandler := handlers.NewJobsHandler(cfg.Store, cfg.Runs, cfg.Output)
	huma.Register(api, huma.Operation{
		OperationID:   "jobs-create",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Submit a plan as a new job",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusCreated,
	}, jobsHandler.Create)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-list",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs, newest first",
		Tags:        []string{"Jobs"},
	}, jobsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-get",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get a job and its steps",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-start",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/start",
		Summary:     "Start a pending job",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Start)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-summary",
		Method:      http.MethodPut,
		Path:        "/jobs/{id}/summary",
		Summary:     "Store a job summary",
		Tags:        []string{"Jobs"},
	}, jobsHandler.SetSummary)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-step-output",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/steps/{order}/output",
		Summary:     "Get a step's persisted output",
		Tags:        []string{"Jobs"},
	}, jobsHandler.StepOutput)

	eventsHandler := handlers.NewEventsHandler(cfg.Store, cfg.Bus, cfg.Runs)
	sse.Register(api, huma.Operation{
		OperationID: "jobs-events",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/events",
		Summary:     "Stream live job events",
		Description: "Sends connected, starts the job if it is pending, then forwards events until job_done.",
		Tags:        []string{"Jobs"},
	}, handlers.EventTypes, eventsHandler.Stream)

	return api
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Debug()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Str("request_id", v.RequestID).Dur("latency", v.Latency.Round(time.Microsecond)).
				Msg("request")
			return nil
		},
	})
}

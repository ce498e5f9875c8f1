package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/qkanhe/api/handlers"
	"github.com/tebben/qkanhe/api/middleware"
	"github.com/tebben/qkanhe/database"
	"github.com/tebben/qkanhe/metrics"
	"github.com/tebben/qkanhe/service"
	"github.com/tebben/qkanhe/settings"
)

// Start serves the qkanhe API on the configured port until a stop signal is
// received.
func Start(config settings.Config) {
	runner := service.NewRunner(config)
	router := createRouter(config, runner)
	server := &http.Server{Addr: fmt.Sprintf(":%v", config.Server.Port), Handler: router}
	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		log.Info("Stop signal received, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 5*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if runner.Running() {
			log.Warn("A pass is still running, its open block is rolled back")
		}

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}

		log.Info("Server stopped successfully")
		serverStopCtx()
	}()

	log.Infof("qkanhe started, running on port %v", config.Server.Port)
	defer database.CloseDBs()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}

	// Wait for server context to be stopped
	<-serverCtx.Done()
}

// createRouter sets up the middleware and routes of the server.
func createRouter(config settings.Config, runner *service.Runner) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.Logger("router", log.StandardLogger(), logrus.DebugLevel))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Throttle(config.Server.MaxConcurrentRequests))
	router.Use(chimiddleware.Timeout(time.Duration(config.Server.Timeout) * time.Second))
	router.Use(chimiddleware.Compress(5, "application/json"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.Server.CORS.AllowOrigins,
		AllowedMethods:   config.Server.CORS.AllowMethods,
		AllowedHeaders:   config.Server.CORS.AllowHeaders,
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	router.NotFound(handlers.NotFoundHandler)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	humaConfig := createHumaConfig()
	api := humachi.New(router, humaConfig)
	registerRoutes(api, config, runner)

	return router
}

func createHumaConfig() huma.Config {
	humaConfig := huma.DefaultConfig("qkanhe", "1.0.0")
	humaConfig.CreateHooks = nil
	humaConfig.Info.Description = "qkanhe transfers sewer network data between a QKan database and a Hystem-Extran database. The API starts export, import, results and link passes and reports the progress of the running pass."

	return humaConfig
}

func registerRoutes(api huma.API, config settings.Config, runner *service.Runner) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Status",
		Description: "Get the status of the qkanhe server.",
	}, handlers.StatusHandler(time.Now(), runner))

	huma.Register(api, huma.Operation{
		OperationID:   "start-run",
		Method:        http.MethodPost,
		Path:          "/runs/{kind}",
		Summary:       "Start pass",
		Description:   "Start an export, import, results or link pass. Only one pass runs at a time.",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusConflict},
	}, handlers.StartRunHandler(runner))

	huma.Register(api, huma.Operation{
		OperationID: "latest-run",
		Method:      http.MethodGet,
		Path:        "/runs/latest",
		Summary:     "Latest pass",
		Description: "Progress, row counts and warnings of the running or last pass.",
	}, handlers.LatestRunHandler(runner))

	huma.Register(api, huma.Operation{
		OperationID: "results-summary",
		Method:      http.MethodGet,
		Path:        "/results/summary",
		Summary:     "Results archive summary",
		Description: "Node count, flooded nodes and maximum flood volume over all archived results passes.",
	}, handlers.SummaryHandler(config))
}

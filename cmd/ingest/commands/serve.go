package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/api"
	"github.com/wonny/aegis-ingest/internal/api/handlers"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "스케줄러 + 상태 API 서버 시작",
	Long: `스케줄러 데몬과 읽기 전용 상태 API를 함께 실행합니다.

등록되는 작업:
- daily_update:  평일 18:00 (일봉 수집)
- health_check:  평일 20:00 (아카이브 검사)
- index_refresh: 토요일 10:00 (INDEX_SOURCE_URL 설정 시)
- temp_cleanup:  매일 03:00 (parquet 아카이브)

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/runs/update/latest
  GET  /api/health/latest
  GET  /api/jobs
  POST /api/jobs/{name}/run
  GET  /api/archive/summary
  GET  /api/instruments
  GET  /api/instruments/{code}/bars

Example:
  go run ./cmd/ingest serve
  go run ./cmd/ingest serve --port 8080 --no-scheduler`,
	RunE: runServe,
}

var (
	servePort        string
	serveNoScheduler bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (default: PORT)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "API만 실행")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(overrides{})
	if err != nil {
		return err
	}
	defer a.Close()
	if servePort != "" {
		a.cfg.Port = servePort
	}

	ctx := context.Background()
	store, err := a.openArchive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	// 1. Scheduler
	var jobRunner handlers.JobRunner
	if !serveNoScheduler {
		sched, err := a.newScheduler(store)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		jobRunner = sched
	}

	// 2. Router
	var metricsHandler http.Handler
	if a.cfg.MetricsEnabled {
		metricsHandler = a.metrics.Handler()
	}
	router := api.NewRouter(
		handlers.NewRunsHandler(a.runs, jobRunner, a.log),
		handlers.NewArchiveHandler(store, a.log),
		metricsHandler,
		a.log,
	)

	// 3. Server
	server := api.New(a.cfg, a.log, router)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	if jobRunner != nil {
		fmt.Println("\nRegistered jobs:")
		PrintList(jobRunner.GetAllJobs())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/s0_data/health"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "아카이브 헬스체크",
	Long: `아카이브의 모든 종목을 병렬로 검사합니다.

검사 항목:
- missing_columns: 필수 컬럼(open/high/low/close/volume) 누락
- missing_data:    컬럼별 NaN 개수가 임계값 초과
- large_steps:     전일 대비 변화율이 임계값 초과
- missing_factor:  factor 컬럼 없음 또는 전부 NaN

발견 사항이 있어도 종료 코드는 0입니다.

Example:
  go run ./cmd/ingest check
  go run ./cmd/ingest check --dir ~/.aegis/cn_data --jobs 8 --limit 100`,
	RunE: runCheck,
}

var (
	checkDir   string
	checkJobs  int
	checkLimit int
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkDir, "dir", "", "archive directory (default: ARCHIVE_DIR)")
	checkCmd.Flags().IntVar(&checkJobs, "jobs", 0, "parallel checks (default: MAX_WORKERS)")
	checkCmd.Flags().IntVar(&checkLimit, "limit", 0, "check only the first N instruments")
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(overrides{dir: checkDir, workers: checkJobs})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openArchive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	exists, err := store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("inspect archive: %w", err)
	}
	if !exists {
		return fmt.Errorf("no archive at %s", a.dir)
	}

	checker := a.newChecker(store)
	codes, err := checker.Codes(ctx, checkLimit)
	if err != nil {
		return err
	}

	report := checker.Run(ctx, codes)
	if err := a.runs.SaveHealth(ctx, report); err != nil {
		a.log.WithError(err).Warn("Failed to record health report")
	}

	health.Render(os.Stdout, report)
	return nil
}

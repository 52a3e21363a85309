package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "일봉 수집 및 아카이브 확장",
	Long: `Provider에서 일봉을 받아 정규화한 뒤 아카이브 끝에 이어 붙입니다.

이 명령어는:
- 아카이브가 없으면 BOOTSTRAP_URL 스냅샷으로 초기화
- 거래일 캘린더와 종목 목록 조회
- 종목별 fetch → normalize → extend → append (worker pool)
- 캘린더/종목 범위 갱신, 지수 구성종목 갱신

Example:
  go run ./cmd/ingest update
  go run ./cmd/ingest update --dir ~/.aegis/cn_data --workers 4
  go run ./cmd/ingest update --start 2023-01-01 --end 2023-07-01 --limit 10`,
	RunE: runUpdate,
}

var (
	updateDir     string
	updateStart   string
	updateEnd     string
	updateWorkers int
	updateStrict  bool
	updateLimit   int
	updateCodes   []string
)

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateDir, "dir", "", "archive directory (default: ARCHIVE_DIR)")
	updateCmd.Flags().StringVar(&updateStart, "start", "", "window start YYYY-MM-DD (default: archive calendar end)")
	updateCmd.Flags().StringVar(&updateEnd, "end", "", "window end YYYY-MM-DD (default: tomorrow)")
	updateCmd.Flags().IntVar(&updateWorkers, "workers", 0, "worker count (default: MAX_WORKERS)")
	updateCmd.Flags().BoolVar(&updateStrict, "strict-splice", false, "fail instruments whose splice day is missing")
	updateCmd.Flags().IntVar(&updateLimit, "limit", 0, "process only the first N instruments")
	updateCmd.Flags().StringSliceVar(&updateCodes, "codes", nil, "explicit instrument codes (SH600000,...)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts, err := updateOptions()
	if err != nil {
		return err
	}

	a, err := newApp(overrides{dir: updateDir, workers: updateWorkers, strictSplice: updateStrict})
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

	PrintRunHeader("Daily Bar Update", []KeyValue{
		{"Archive", a.dir},
		{"Backend", a.cfg.Archive.Backend},
		{"Workers", fmt.Sprintf("%d", a.pipeline.Update.Workers)},
		{"Window", windowLabel(opts)},
	})

	report, err := a.newCollector(store).Update(ctx, opts)
	if report != nil {
		printUpdateReport(report)
	}
	if err != nil {
		PrintError(err.Error())
		return err
	}
	return nil
}

func updateOptions() (collector.Options, error) {
	var opts collector.Options
	var err error
	if updateStart != "" {
		if opts.Start, err = contracts.ParseDay(updateStart); err != nil {
			return opts, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if updateEnd != "" {
		if opts.End, err = contracts.ParseDay(updateEnd); err != nil {
			return opts, fmt.Errorf("invalid --end: %w", err)
		}
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return opts, fmt.Errorf("--end %s is before --start %s", updateEnd, updateStart)
	}
	opts.Limit = updateLimit
	for _, c := range updateCodes {
		opts.Codes = append(opts.Codes, strings.ToUpper(strings.TrimSpace(c)))
	}
	return opts, nil
}

func windowLabel(opts collector.Options) string {
	start, end := "archive end", "tomorrow"
	if !opts.Start.IsZero() {
		start = opts.Start.Format(contracts.DateLayout)
	}
	if !opts.End.IsZero() {
		end = opts.End.Format(contracts.DateLayout)
	}
	return start + " ~ " + end
}

func printUpdateReport(r *contracts.UpdateReport) {
	fmt.Println()
	PrintDoubleSeparator()
	PrintKeyValue("Window", fmt.Sprintf("%s ~ %s", r.WindowStart.Format(contracts.DateLayout), r.WindowEnd.Format(contracts.DateLayout)), 12)
	if r.Bootstrapped {
		PrintKeyValue("Bootstrap", "archive initialized", 12)
	}
	PrintKeyValue("Instruments", fmt.Sprintf("%d", r.Total), 12)
	PrintKeyValue("Success", fmt.Sprintf("%d", r.Success), 12)
	PrintKeyValue("Empty", fmt.Sprintf("%d", r.Empty), 12)
	PrintKeyValue("Failed", fmt.Sprintf("%d", r.Failed), 12)
	PrintKeyValue("Rows", fmt.Sprintf("%d", r.RowsAppended), 12)
	PrintKeyValue("Duration", r.Duration().Round(time.Millisecond).String(), 12)
	PrintSeparator()

	if len(r.Failures) > 0 {
		codes := make([]string, 0, len(r.Failures))
		for code := range r.Failures {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		PrintTableHeader([]string{"instrument", "error"}, []int{10, 60})
		for _, code := range codes {
			PrintTableRow([]string{code, r.Failures[code]}, []int{10, 60})
		}
		fmt.Println()
	}
	for index, msg := range r.IndexErrors {
		PrintWarning(fmt.Sprintf("index %s not refreshed: %s", index, msg))
	}

	if r.Failed == 0 {
		PrintSuccess(fmt.Sprintf("Update completed: %d instruments, %d rows", r.Total, r.RowsAppended))
	} else {
		PrintWarning(fmt.Sprintf("Update completed with %d failures", r.Failed))
	}
}

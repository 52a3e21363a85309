package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/contracts"
)

// summaryCmd represents the summary command
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "아카이브 요약",
	Long: `아카이브의 기간, 종목 수, 필드와 최근 실행 결과를 출력합니다.

Example:
  go run ./cmd/ingest summary
  go run ./cmd/ingest summary --dir ~/.aegis/cn_data`,
	RunE: runSummary,
}

var summaryDir string

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVar(&summaryDir, "dir", "", "archive directory (default: ARCHIVE_DIR)")
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp(overrides{dir: summaryDir})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	store, err := a.openArchive(ctx)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	days, err := store.Calendar(ctx)
	if err != nil {
		return fmt.Errorf("read calendar: %w", err)
	}
	instruments, err := store.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("read instruments: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Println("  Archive Summary")
	PrintSeparator()
	PrintKeyValue("Archive", a.dir, 12)
	if len(days) > 0 {
		PrintKeyValue("Calendar", fmt.Sprintf("%s ~ %s (%d days)",
			days[0].Format(contracts.DateLayout), days[len(days)-1].Format(contracts.DateLayout), len(days)), 12)
	} else {
		PrintKeyValue("Calendar", "empty", 12)
	}
	PrintKeyValue("Instruments", fmt.Sprintf("%d", len(instruments)), 12)
	PrintKeyValue("Fields", strings.Join(contracts.AllColumns, ", "), 12)

	for _, name := range a.strategy.Indices {
		members, err := store.ReadIndex(ctx, name)
		if err != nil {
			continue
		}
		PrintKeyValue(name, fmt.Sprintf("%d members", len(members)), 12)
	}

	if last, ok, err := a.runs.LatestUpdate(ctx); err == nil && ok {
		PrintSeparator()
		PrintKeyValue("Last update", last.FinishedAt.Format(time.RFC3339), 12)
		PrintKeyValue("Result", fmt.Sprintf("%d ok / %d empty / %d failed", last.Success, last.Empty, last.Failed), 12)
	}
	PrintDoubleSeparator()
	return nil
}

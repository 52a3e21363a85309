package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/calendar"
	"github.com/wonny/aegis-ingest/internal/contracts"
)

// calendarCmd represents the calendar command
var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "거래일 캘린더 조회",
}

var calendarShowCmd = &cobra.Command{
	Use:   "show",
	Short: "기간 내 거래일 출력",
	Long: `Provider(기본) 또는 아카이브 캘린더에서 거래일을 조회합니다.

Example:
  go run ./cmd/ingest calendar show --start 2023-07-01 --end 2023-07-31
  go run ./cmd/ingest calendar show --source archive --dir ~/.aegis/cn_data`,
	RunE: runCalendarShow,
}

var (
	calendarSource string
	calendarStart  string
	calendarEnd    string
	calendarDir    string
)

func init() {
	rootCmd.AddCommand(calendarCmd)
	calendarCmd.AddCommand(calendarShowCmd)

	calendarShowCmd.Flags().StringVar(&calendarSource, "source", "remote", "remote or archive")
	calendarShowCmd.Flags().StringVar(&calendarStart, "start", "", "start YYYY-MM-DD (default: 30 days ago)")
	calendarShowCmd.Flags().StringVar(&calendarEnd, "end", "", "end YYYY-MM-DD (default: today)")
	calendarShowCmd.Flags().StringVar(&calendarDir, "dir", "", "archive directory (default: ARCHIVE_DIR)")
}

func runCalendarShow(cmd *cobra.Command, args []string) error {
	end := contracts.Day(time.Now())
	start := end.AddDate(0, 0, -30)
	var err error
	if calendarStart != "" {
		if start, err = contracts.ParseDay(calendarStart); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if calendarEnd != "" {
		if end, err = contracts.ParseDay(calendarEnd); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	a, err := newApp(overrides{dir: calendarDir})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	var provider contracts.CalendarProvider
	switch calendarSource {
	case "remote":
		provider = calendar.NewRemoteProvider(a.providerClient(), a.cache, a.strategy.Region, a.log)
	case "archive":
		store, err := a.openArchive(ctx)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()
		provider = calendar.NewFileProvider(store, a.strategy.Region)
	default:
		return fmt.Errorf("unknown source: %s (valid: remote, archive)", calendarSource)
	}

	days, err := provider.Calendar(ctx, a.strategy.Region, start, end)
	if err != nil {
		return fmt.Errorf("load calendar: %w", err)
	}

	PrintSeparator()
	fmt.Printf("  %s ~ %s (%s): %d trading days\n",
		start.Format(contracts.DateLayout), end.Format(contracts.DateLayout), calendarSource, len(days))
	PrintSeparator()
	for _, d := range days {
		fmt.Printf("   %s %s\n", d.Format(contracts.DateLayout), d.Weekday().String()[:3])
	}
	return nil
}

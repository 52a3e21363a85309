package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-ingest/internal/contracts"
	"github.com/wonny/aegis-ingest/internal/s0_data/collector"
	"github.com/wonny/aegis-ingest/internal/scheduler"
	"github.com/wonny/aegis-ingest/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄 작업을 조회하거나 즉시 실행합니다.
데몬 실행은 'serve' 명령어를 사용합니다.

Subcommands:
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/ingest scheduler list
  go run ./cmd/ingest scheduler run daily_update`,
}

var (
	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// staleTempAge is how old a *.tmp file must be before cleanup removes it
const staleTempAge = 6 * time.Hour

// newScheduler registers the pipeline jobs against store
func (a *app) newScheduler(store contracts.Archive) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, 1, 10*time.Minute)

	registered := []scheduler.Job{
		jobs.NewUpdateJob(a.newCollector(store), collector.Options{}, a.log),
		jobs.NewHealthJob(a.newChecker(store), a.runs, 0, a.log),
	}
	if r := a.indexRefresher(store); r != nil {
		registered = append(registered, jobs.NewIndexRefreshJob(r, a.strategy.Indices, a.log))
	}
	if a.cfg.Archive.Backend != "postgres" {
		registered = append(registered, jobs.NewTempCleanupJob(a.dir, staleTempAge, a.log))
	}

	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(overrides{})
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openArchive(context.Background())
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	sched, err := a.newScheduler(store)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{16, 18}
	PrintTableHeader([]string{"job", "schedule"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp(overrides{})
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

	sched, err := a.newScheduler(store)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		PrintError(fmt.Sprintf("Job %s failed after %d attempts: %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

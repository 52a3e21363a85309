package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	pipelineFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "일봉 수집 · 아카이브 확장 · 헬스체크",
	Long: `Aegis Ingest CLI

Provider에서 일봉을 수집해 정규화하고, 기존 아카이브에 가격 연속성을 유지하며
이어 붙인 뒤, 아카이브를 병렬로 검사합니다.

Usage:
  go run ./cmd/ingest [command]

Examples:
  go run ./cmd/ingest update --dir ~/.aegis/cn_data
  go run ./cmd/ingest check --jobs 8
  go run ./cmd/ingest serve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pipelineFile, "config", "", "pipeline YAML (default: PIPELINE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

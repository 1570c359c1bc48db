package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
)

var (
	runName         string
	runOrg          string
	runRole         string
	runURL          string
	runRecordID     string
	runSkipProfile  bool
	runSkipDir      bool
	runSkipNews     bool
	runSkipSocial   bool
	runSkipEncyc    bool
	runMaxCitations int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the research pipeline for a single subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResearch(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.ResearchRequest{
			Subject: model.Subject{
				Name:         runName,
				Organization: runOrg,
				Role:         runRole,
				ProfileURL:   runURL,
				RecordID:     runRecordID,
			},
			Options: model.ResearchOptions{
				SkipProfile:      runSkipProfile,
				SkipDirectory:    runSkipDir,
				SkipNews:         runSkipNews,
				SkipSocial:       runSkipSocial,
				SkipEncyclopedia: runSkipEncyc,
				MaxCitations:     runMaxCitations,
			},
		}

		result, err := env.Orchestrator.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		zap.L().Info("research complete",
			zap.String("run_id", result.RunID),
			zap.Int("records", len(result.Records)),
			zap.Int("facts", len(result.Facts)),
			zap.Int("errors", len(result.Errors)),
			zap.Bool("partial", result.Partial),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "subject name")
	runCmd.Flags().StringVar(&runOrg, "org", "", "subject organization")
	runCmd.Flags().StringVar(&runRole, "role", "", "subject role hint")
	runCmd.Flags().StringVar(&runURL, "url", "", "canonical profile URL")
	runCmd.Flags().StringVar(&runRecordID, "record-id", "", "stable subject record ID (generated when omitted)")
	runCmd.Flags().BoolVar(&runSkipProfile, "skip-profile", false, "skip the profile scrape")
	runCmd.Flags().BoolVar(&runSkipDir, "skip-directory", false, "skip the directory-search fallback")
	runCmd.Flags().BoolVar(&runSkipNews, "skip-news", false, "skip news search")
	runCmd.Flags().BoolVar(&runSkipSocial, "skip-social", false, "skip social discovery")
	runCmd.Flags().BoolVar(&runSkipEncyc, "skip-encyclopedia", false, "skip encyclopedic lookup")
	runCmd.Flags().IntVar(&runMaxCitations, "max-citations", 0, "citation fetch cap (default from config)")
	rootCmd.AddCommand(runCmd)
}

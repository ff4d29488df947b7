package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yourusername/clever-calibrator/internal/models"
)

const commandTimeout = 5 * time.Minute

var (
	sourceID   string
	matchID    string
	league     string
	confidence float64
	odds       float64
	bankroll   float64
	withBounds bool
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one calibration refresh and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		app, err := newApplication(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.service.Refresh(ctx); err != nil {
			return err
		}
		return printJSON(app.service.Summary())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show calibration state and per-source performance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		app, err := newApplication(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.service.WarmStart(ctx); err != nil {
			appLog.WithError(err).Warn("Could not load persisted snapshot")
		}
		if err := app.service.EnsureFresh(ctx); err != nil {
			appLog.WithError(err).Warn("Refresh failed, showing last known calibration")
		}

		displayStatus(app)
		return nil
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Calibrate one confidence value, optionally sizing a stake",
	RunE: func(cmd *cobra.Command, args []string) error {
		if confidence < 0 || confidence > 100 {
			return fmt.Errorf("confidence must be between 0 and 100")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		app, err := newApplication(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.service.EnsureFresh(ctx); err != nil {
			appLog.WithError(err).Warn("Refresh failed, calibrating with neutral tables")
		}

		switch {
		case odds > 0:
			return printJSON(app.service.SuggestStake(sourceID, confidence, odds, decimal.NewFromFloat(bankroll)))
		case withBounds:
			return printJSON(app.service.Uncertainty(sourceID, confidence))
		default:
			return printJSON(app.service.Calibrate(sourceID, confidence))
		}
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Store a new pending prediction",
	RunE: func(cmd *cobra.Command, args []string) error {
		if confidence < 0 || confidence > 100 {
			return fmt.Errorf("confidence must be between 0 and 100")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		app, err := newApplication(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.service.RecordPredictions(ctx, []models.PredictionRecord{{
			SourceID:      sourceID,
			MatchID:       matchID,
			League:        league,
			ConfidenceRaw: confidence,
		}})
		if err != nil {
			return err
		}
		fmt.Println(ids[0])
		return nil
	},
}

var settleCmd = &cobra.Command{
	Use:   "settle <prediction-id> <won|lost>",
	Short: "Record the final outcome of a pending prediction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prediction id: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		app, err := newApplication(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.service.SettlePrediction(ctx, id, models.Outcome(args[1])); err != nil {
			return err
		}
		fmt.Printf("prediction %s settled as %s\n", id, args[1])
		return nil
	},
}

func init() {
	calibrateCmd.Flags().StringVarP(&sourceID, "source", "s", "", "Prediction source ID")
	calibrateCmd.Flags().Float64Var(&confidence, "confidence", 0, "Raw confidence, 0-100")
	calibrateCmd.Flags().Float64Var(&odds, "odds", 0, "Decimal odds; when set a stake is suggested")
	calibrateCmd.Flags().Float64Var(&bankroll, "bankroll", 0, "Bankroll for stake sizing; defaults to staking.default_bankroll")
	calibrateCmd.Flags().BoolVar(&withBounds, "uncertainty", false, "Report a Monte-Carlo interval instead")
	_ = calibrateCmd.MarkFlagRequired("source")
	_ = calibrateCmd.MarkFlagRequired("confidence")

	recordCmd.Flags().StringVarP(&sourceID, "source", "s", "", "Prediction source ID")
	recordCmd.Flags().StringVarP(&matchID, "match", "m", "", "Match ID")
	recordCmd.Flags().StringVar(&league, "league", "", "League name")
	recordCmd.Flags().Float64Var(&confidence, "confidence", 0, "Raw confidence, 0-100")
	_ = recordCmd.MarkFlagRequired("source")
	_ = recordCmd.MarkFlagRequired("match")
	_ = recordCmd.MarkFlagRequired("confidence")
}

func displayStatus(app *application) {
	summary := app.service.Summary()

	fmt.Println("\nCalibration Status")
	fmt.Println("==================")
	fmt.Printf("  Active:            %v\n", summary.IsActive)
	fmt.Printf("  Last updated:      %s\n", formatTime(summary.LastUpdated))
	fmt.Printf("  Stale:             %v\n", summary.IsStale)
	fmt.Printf("  Calibrated:        %v (%d problematic bins)\n", summary.IsCalibrated, summary.ProblematicBins)
	fmt.Printf("  Adjusted bins:     %d of %d\n", summary.AdjustedBins, summary.TotalBins)
	fmt.Printf("  Overall factor:    %.3f\n", summary.OverallAdjustmentFactor)
	fmt.Printf("  Sources:           %d (%d adjusted, %d paused)\n",
		summary.TotalSources, summary.AdjustedSources, summary.PausedSources)

	sources := app.service.Sources()
	if len(sources) == 0 {
		fmt.Println()
		return
	}

	fmt.Println("\nSources")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  SOURCE\tBETS\tWIN%\tEXPECTED%\tVS EXP\tSTREAK\tMULT\tWEIGHT\tHEALTH\tSTATUS")
	for _, perf := range sources {
		status := "active"
		if perf.IsPaused {
			status = "paused: " + perf.PauseReason
		}
		fmt.Fprintf(w, "  %s\t%d\t%.1f\t%.1f\t%+.1f\t%+d\t%.3f\t%.3f\t%.0f\t%s\n",
			perf.SourceID, perf.TotalBets, perf.WinRate, perf.ExpectedWinRate, perf.PerformanceVsExpected,
			perf.Streak, perf.ConfidenceMultiplier, perf.AdjustedWeight, perf.HealthScore, status)
	}
	w.Flush()
	fmt.Println()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

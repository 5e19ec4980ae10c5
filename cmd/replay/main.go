// Command replay scores recorded signals against their realized outcomes
// and reports what a calibration cycle would do, without touching the live
// thresholds unless -apply is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/database"
	"trade-signal-engine/internal/logging"
	"trade-signal-engine/internal/market"
)

func main() {
	days := flag.Int("days", 0, "lookback window in days (default: calibrator config)")
	apply := flag.Bool("apply", false, "run a real calibration cycle and record the result")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lookback := cfg.CalibratorConfig.LookbackDays
	if *days > 0 {
		lookback = *days
	}
	if lookback <= 0 {
		lookback = 7
	}

	logger, err := logging.New(cfg.LoggingConfig)
	if err != nil {
		fmt.Printf("❌ Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := database.NewRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -lookback)

	fmt.Println("📊 SIGNAL OUTCOME REPLAY")
	fmt.Printf("   Window: %s → %s (%d days)\n", from.Format("2006-01-02"), to.Format("2006-01-02"), lookback)

	var metrics *calibrate.PerformanceMetrics
	if *apply {
		store := calibrate.NewStore(calibrate.Thresholds{
			MinConfidence:           cfg.ThresholdsConfig.MinConfidence,
			ConsensusRequired:       cfg.ThresholdsConfig.ConsensusRequired,
			ConsensusAgreementBonus: cfg.ThresholdsConfig.ConsensusAgreementBonus,
		})
		calibrator, err := calibrate.NewCalibrator(cfg.CalibratorConfig, store, repo, repo, logger)
		if err != nil {
			fmt.Printf("❌ Failed to build calibrator: %v\n", err)
			os.Exit(1)
		}
		metrics, err = calibrator.RunCycle(ctx, from, to)
		if err != nil {
			fmt.Printf("❌ Calibration cycle failed: %v\n", err)
			os.Exit(1)
		}
		th := store.Current()
		fmt.Printf("\n🔧 Thresholds after cycle: minConfidence=%.1f consensusRequired=%v (version %d)\n",
			th.MinConfidence, th.ConsensusRequired, th.Version)
	} else {
		records, err := repo.SignalsWithOutcomes(ctx, from, to)
		if err != nil {
			fmt.Printf("❌ Failed to fetch signal outcomes: %v\n", err)
			os.Exit(1)
		}
		metrics = calibrate.ComputeMetrics(records, cfg.CalibratorConfig.MinMovePercent, from, to)
	}

	if metrics.TotalSignals == 0 {
		fmt.Println("\n❌ No signals with recorded outcomes in this window")
		return
	}

	fmt.Printf("\n   Signals scored:  %d\n", metrics.TotalSignals)
	fmt.Printf("   Correct:         %d\n", metrics.Correct)
	fmt.Printf("   Accuracy:        %.1f%%\n", metrics.Accuracy*100)
	fmt.Printf("   Win rate:        %.1f%% (trades only)\n", metrics.WinRate*100)

	fmt.Println("\n   By decision:")
	decisions := make([]market.Decision, 0, len(metrics.PerDecision))
	for d := range metrics.PerDecision {
		decisions = append(decisions, d)
	}
	sort.Slice(decisions, func(i, j int) bool { return decisions[i] < decisions[j] })
	for _, d := range decisions {
		stats := metrics.PerDecision[d]
		emoji := "🟢"
		if stats.Accuracy < 0.5 {
			emoji = "🔴"
		}
		fmt.Printf("   %s %-9s %4d signals, %4d correct (%.1f%%)\n",
			emoji, d, stats.Total, stats.Correct, stats.Accuracy*100)
	}

	if !*apply {
		printAdvice(metrics, cfg.CalibratorConfig)
	}
}

// printAdvice mirrors the calibrator's adjustment rule so the dry run shows
// what a real cycle would decide.
func printAdvice(metrics *calibrate.PerformanceMetrics, cfg config.CalibratorConfig) {
	fmt.Println("\n💡 What a calibration cycle would do:")
	switch {
	case metrics.Accuracy < cfg.LowAccuracy:
		fmt.Printf("   ⚠️  Accuracy %.1f%% is below %.1f%%: minConfidence would rise by %.1f and consensus would be required\n",
			metrics.Accuracy*100, cfg.LowAccuracy*100, cfg.ConfidenceStep)
	case metrics.Accuracy > cfg.HighAccuracy:
		fmt.Printf("   ✅ Accuracy %.1f%% is above %.1f%%: minConfidence would drop by %.1f\n",
			metrics.Accuracy*100, cfg.HighAccuracy*100, cfg.ConfidenceStep)
	default:
		fmt.Printf("   ✅ Accuracy %.1f%% is within the stable band: no adjustment\n", metrics.Accuracy*100)
	}
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/market"
	"trade-signal-engine/internal/pipeline"
)

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveSignal inserts one emitted signal with its full audit trail
func (r *Repository) SaveSignal(ctx context.Context, signal *pipeline.Signal) error {
	confluence, err := marshalOrNil(signal.Confluence)
	if err != nil {
		return err
	}
	consensus, err := marshalOrNil(signal.Consensus)
	if err != nil {
		return err
	}
	validation, err := marshalOrNil(signal.Validation)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO signals (id, generated_at, instrument, timeframe, decision, confidence,
			threshold_version, rationale, confluence, consensus, validation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		signal.ID, signal.Timestamp, signal.Instrument, signal.Timeframe,
		string(signal.Decision), signal.Confidence, signal.ThresholdVersion,
		signal.Rationale, confluence, consensus, validation,
	)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// RecordOutcome stores the realized price move for one signal
func (r *Repository) RecordOutcome(ctx context.Context, signalID string, movePercent float64) error {
	query := `
		INSERT INTO signal_outcomes (signal_id, realized_move_percent)
		VALUES ($1, $2)
		ON CONFLICT (signal_id) DO UPDATE
			SET realized_move_percent = EXCLUDED.realized_move_percent,
			    evaluated_at = NOW()
	`
	if _, err := r.db.Pool.Exec(ctx, query, signalID, movePercent); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// RecentSignals returns the latest emitted signals, newest first
func (r *Repository) RecentSignals(ctx context.Context, instrument string, limit int) ([]*SignalRow, error) {
	query := `
		SELECT id, generated_at, instrument, timeframe, decision, confidence,
			threshold_version, rationale
		FROM signals
	`
	args := []interface{}{}
	if instrument != "" {
		query += ` WHERE instrument = $1`
		args = append(args, instrument)
	}
	query += fmt.Sprintf(` ORDER BY generated_at DESC LIMIT %d`, limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []*SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.GeneratedAt, &s.Instrument, &s.Timeframe,
			&s.Decision, &s.Confidence, &s.ThresholdVersion, &s.Rationale); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SignalsWithOutcomes returns decided signals paired with realized outcomes
// in the window. Signals without a recorded outcome are excluded; the
// calibrator can only score what was measured.
func (r *Repository) SignalsWithOutcomes(ctx context.Context, from, to time.Time) ([]calibrate.Record, error) {
	query := `
		SELECT s.instrument, s.timeframe, s.decision, s.confidence, s.generated_at,
			o.realized_move_percent
		FROM signals s
		JOIN signal_outcomes o ON o.signal_id = s.id
		WHERE s.generated_at >= $1 AND s.generated_at < $2
		ORDER BY s.generated_at
	`
	rows, err := r.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history: %w", err)
	}
	defer rows.Close()

	var out []calibrate.Record
	for rows.Next() {
		var rec calibrate.Record
		var decision string
		if err := rows.Scan(&rec.Instrument, &rec.Timeframe, &decision,
			&rec.Confidence, &rec.GeneratedAt, &rec.RealizedMovePercent); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.Decision = market.Decision(decision)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveCalibrationRun stores one calibration cycle and the threshold version
// it left live, in a single transaction
func (r *Repository) SaveCalibrationRun(ctx context.Context, metrics *calibrate.PerformanceMetrics, published *calibrate.Thresholds) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calibration_runs (window_from, window_to, total_signals, correct,
			accuracy, win_rate, adjusted, metrics, threshold_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, metrics.From, metrics.To, metrics.TotalSignals, metrics.Correct,
		metrics.Accuracy, metrics.WinRate, metrics.Adjusted, metricsJSON, published.Version)
	if err != nil {
		return fmt.Errorf("failed to save calibration run: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO threshold_versions (version, min_confidence, consensus_required,
			consensus_agreement_bonus, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version) DO NOTHING
	`, published.Version, published.MinConfidence, published.ConsensusRequired,
		published.ConsensusAgreementBonus, published.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save threshold version: %w", err)
	}

	return tx.Commit(ctx)
}

func marshalOrNil(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal payload: %w", err)
	}
	return data, nil
}

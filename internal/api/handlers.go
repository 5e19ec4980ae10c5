package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type generateRequest struct {
	Instrument     string `json:"instrument" binding:"required"`
	Timeframe      string `json:"timeframe" binding:"required"`
	AnalysisWindow int    `json:"analysis_window"`
}

// handleGenerateSignal runs the pipeline on demand for one key
func (s *Server) handleGenerateSignal(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "instrument and timeframe are required")
		return
	}

	signal := s.pipeline.GenerateSignal(c.Request.Context(), req.Instrument, req.Timeframe, req.AnalysisWindow)

	if s.cache != nil {
		if err := s.cache.CacheLatestSignal(c.Request.Context(), signal); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to cache generated signal")
		}
	}
	successResponse(c, signal)
}

// handleLatestSignal serves the cached most recent signal for one key
func (s *Server) handleLatestSignal(c *gin.Context) {
	instrument := c.Query("instrument")
	timeframe := c.Query("timeframe")
	if instrument == "" || timeframe == "" {
		errorResponse(c, http.StatusBadRequest, "instrument and timeframe query parameters are required")
		return
	}
	if s.cache == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal cache is not enabled")
		return
	}

	signal, err := s.cache.LatestSignal(c.Request.Context(), instrument, timeframe)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			errorResponse(c, http.StatusNotFound, "no recent signal for this instrument and timeframe")
			return
		}
		errorResponse(c, http.StatusServiceUnavailable, "signal cache unavailable")
		return
	}
	successResponse(c, signal)
}

// handleRecentSignals lists persisted signals, newest first
func (s *Server) handleRecentSignals(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal persistence is not enabled")
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	signals, err := s.repo.RecentSignals(c.Request.Context(), c.Query("instrument"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list signals")
		errorResponse(c, http.StatusInternalServerError, "failed to list signals")
		return
	}
	successResponse(c, signals)
}

type outcomeRequest struct {
	SignalID            string   `json:"signal_id" binding:"required"`
	RealizedMovePercent *float64 `json:"realized_move_percent" binding:"required"`
}

// handleRecordOutcome stores a realized outcome against an emitted signal,
// closing the calibration loop
func (s *Server) handleRecordOutcome(c *gin.Context) {
	if s.repo == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal persistence is not enabled")
		return
	}

	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "signal_id and realized_move_percent are required")
		return
	}

	if err := s.repo.RecordOutcome(c.Request.Context(), req.SignalID, *req.RealizedMovePercent); err != nil {
		s.logger.Error().Err(err).Str("signal_id", req.SignalID).Msg("Failed to record outcome")
		errorResponse(c, http.StatusInternalServerError, "failed to record outcome")
		return
	}
	successResponse(c, gin.H{"signal_id": req.SignalID})
}

// handleThresholds returns the live thresholds snapshot
func (s *Server) handleThresholds(c *gin.Context) {
	successResponse(c, s.pipeline.Thresholds())
}

type calibrateRequest struct {
	LookbackDays int `json:"lookback_days"`
}

// handleCalibrate triggers an on-demand calibration cycle
func (s *Server) handleCalibrate(c *gin.Context) {
	if s.calibrator == nil {
		errorResponse(c, http.StatusServiceUnavailable, "calibrator is not enabled")
		return
	}

	// Body is optional; a missing or empty body uses the default lookback
	var req calibrateRequest
	_ = c.ShouldBindJSON(&req)
	if req.LookbackDays <= 0 {
		req.LookbackDays = 7
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -req.LookbackDays)

	metrics, err := s.calibrator.RunCycle(c.Request.Context(), from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("On-demand calibration failed")
		errorResponse(c, http.StatusInternalServerError, "calibration cycle failed")
		return
	}
	successResponse(c, gin.H{
		"metrics":    metrics,
		"thresholds": s.pipeline.Thresholds(),
	})
}

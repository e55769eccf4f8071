package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mitiempo/mitiempo/internal/storage"
)

func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTracking returns the live state of all activities.
func (s *Server) handleTracking(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleStart(ctx *gin.Context) {
	kind, err := storage.ParseActivityKind(ctx.Param("kind"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_kind",
			"message": err.Error(),
		})
		return
	}

	if err := s.engine.StartActivity(ctx.Request.Context(), kind); err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to start activity")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "start_failed",
			"message": "Failed to start activity",
		})
		return
	}

	ctx.JSON(http.StatusOK, s.engine.Snapshot().Activity(kind))
}

func (s *Server) handleStop(ctx *gin.Context) {
	kind, err := storage.ParseActivityKind(ctx.Param("kind"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_kind",
			"message": err.Error(),
		})
		return
	}

	if err := s.engine.StopActivity(ctx.Request.Context(), kind); err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to stop activity")
		status := http.StatusInternalServerError
		code := "stop_failed"
		if errors.Is(err, storage.ErrNotFound) {
			// Live state disagreed with the store; reconciliation will settle it.
			status = http.StatusConflict
			code = "no_open_interval"
		}
		ctx.JSON(status, gin.H{
			"error":   code,
			"message": "Failed to stop activity",
		})
		return
	}

	ctx.JSON(http.StatusOK, s.engine.Snapshot().Activity(kind))
}

// handleProgress returns the aggregated summary for one date, defaulting
// to today.
func (s *Server) handleProgress(ctx *gin.Context) {
	date, ok := s.dateParam(ctx)
	if !ok {
		return
	}

	summary, err := s.aggregator.Summary(ctx.Request.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to load progress")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "progress_failed",
			"message": "Failed to load progress",
		})
		return
	}

	ctx.JSON(http.StatusOK, summary)
}

func (s *Server) handleHistory(ctx *gin.Context) {
	days := s.config.HistoryDays
	if raw := ctx.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_days",
				"message": "days must be an integer between 1 and 365",
			})
			return
		}
		days = parsed
	}

	history, err := s.aggregator.History(ctx.Request.Context(), days)
	if err != nil {
		s.logger.Error().Err(err).Int("days", days).Msg("Failed to load history")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history_failed",
			"message": "Failed to load history",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"days": history})
}

func (s *Server) handleRecords(ctx *gin.Context) {
	date, ok := s.dateParam(ctx)
	if !ok {
		return
	}

	records, err := s.aggregator.Records(ctx.Request.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to load records")
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error":   "records_failed",
			"message": "Failed to load records",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"date":    date,
		"records": records,
	})
}

type profileResponse struct {
	LoggedIn bool   `json:"logged_in"`
	Name     string `json:"name"`
}

func (s *Server) handleGetProfile(ctx *gin.Context) {
	loggedIn, err := s.preferences.GetBool(ctx.Request.Context(), storage.PrefLoggedIn, false)
	if err != nil {
		s.profileError(ctx, err)
		return
	}
	name, err := s.preferences.GetString(ctx.Request.Context(), storage.PrefUserName, "")
	if err != nil {
		s.profileError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, profileResponse{LoggedIn: loggedIn, Name: name})
}

func (s *Server) handleSetProfile(ctx *gin.Context) {
	var req profileResponse
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_body",
			"message": "Request body must be JSON with logged_in and name",
		})
		return
	}

	if err := s.preferences.SetBool(ctx.Request.Context(), storage.PrefLoggedIn, req.LoggedIn); err != nil {
		s.profileError(ctx, err)
		return
	}
	if err := s.preferences.SetString(ctx.Request.Context(), storage.PrefUserName, req.Name); err != nil {
		s.profileError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, req)
}

func (s *Server) profileError(ctx *gin.Context, err error) {
	s.logger.Error().Err(err).Msg("Profile store access failed")
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"error":   "profile_failed",
		"message": "Failed to access profile",
	})
}

// dateParam reads the date query parameter, defaulting to today. It
// responds with 400 and returns false on a malformed date.
func (s *Server) dateParam(ctx *gin.Context) (string, bool) {
	date := ctx.Query("date")
	if date == "" {
		return storage.DateOf(s.clock.Now()), true
	}
	if _, err := time.Parse(storage.DateFormat, date); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_date",
			"message": "date must be in YYYY-MM-DD format",
		})
		return "", false
	}
	return date, true
}

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type settingsRequest struct {
	AutoPauseAfterMinutes *int  `json:"auto_pause_after_minutes"`
	NotifyAfterMinutes    *int  `json:"notify_after_minutes"`
	AutoStartDay          *bool `json:"auto_start_day"`
	EndOfDayHour          *int  `json:"end_of_day_hour"`
	ShowCompletedTasks    *bool `json:"show_completed_tasks"`
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.settings.LoadSettings(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	settings, err := s.settings.LoadSettings(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	if req.AutoPauseAfterMinutes != nil {
		settings.AutoPauseAfterMinutes = *req.AutoPauseAfterMinutes
	}
	if req.NotifyAfterMinutes != nil {
		settings.NotifyAfterMinutes = *req.NotifyAfterMinutes
	}
	if req.AutoStartDay != nil {
		settings.AutoStartDay = *req.AutoStartDay
	}
	if req.EndOfDayHour != nil {
		settings.EndOfDayHour = *req.EndOfDayHour
	}
	if req.ShowCompletedTasks != nil {
		settings.ShowCompletedTasks = *req.ShowCompletedTasks
	}

	if err := s.settings.SaveSettings(c.Request.Context(), settings); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settings": settings})
}

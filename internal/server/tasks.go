package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/pkg/models"
)

type createTaskRequest struct {
	Title  string `json:"title" binding:"required"`
	Status string `json:"status"`
}

type moveTaskRequest struct {
	Direction string `json:"direction" binding:"required"`
}

type workingTimeRequest struct {
	TotalWorkingTimeMs int64 `json:"total_working_time_ms"`
}

func (s *Server) handleListTasks(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		st := models.TaskStatus(status)
		if !st.Valid() {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{"tasks": s.board.TasksByStatus(st)})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": s.board.Tasks()})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task := s.board.Task(c.Param("id"))
	if task == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	status := models.TaskStatusNew
	if req.Status != "" {
		status = models.TaskStatus(req.Status)
	}

	task, err := s.board.CreateTask(c.Request.Context(), req.Title, status, c.Param("id"))
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

func (s *Server) handleEditTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}

	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.board.EditTask(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	if err := s.board.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleMoveTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}

	var req moveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	var dir engine.Direction
	switch req.Direction {
	case "left":
		dir = engine.MoveLeft
	case "right":
		dir = engine.MoveRight
	default:
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("unknown direction %q", req.Direction))
		return
	}

	if err := s.board.MoveTask(c.Request.Context(), id, dir); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handleStartTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	if err := s.board.StartWorking(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handlePauseTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	if err := s.board.Pause(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}
	if err := s.board.MarkDone(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handleSetWorkingTime(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}

	var req workingTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	total := time.Duration(req.TotalWorkingTimeMs) * time.Millisecond
	if err := s.board.SetWorkingTime(c.Request.Context(), id, total); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": s.board.Task(id)})
}

func (s *Server) handleTimeReport(c *gin.Context) {
	id := c.Param("id")
	if s.board.Task(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("task not found"))
		return
	}

	now := time.Now()
	report := s.board.TimeReport(id, now)
	byStatus := make(map[string]int64, len(report))
	for status, d := range report {
		byStatus[string(status)] = d.Milliseconds()
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"task_id":         id,
		"worked_ms":       s.board.WorkedTime(id, now).Milliseconds(),
		"by_status_ms":    byStatus,
		"reported_at_utc": now.UTC(),
	})
}

func (s *Server) handleActiveTask(c *gin.Context) {
	task := s.board.ActiveTask()
	if task == nil {
		respondSuccess(c, http.StatusOK, gin.H{"task": nil})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"task":      task,
		"worked_ms": s.board.WorkedTime(task.ID, time.Now()).Milliseconds(),
	})
}

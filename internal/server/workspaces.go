package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type updateWorkspaceRequest struct {
	Name      *string   `json:"name"`
	TaskTypes *[]string `json:"task_types"`
}

func (s *Server) handleListWorkspaces(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"workspaces": s.board.Workspaces(),
		"current":    s.board.CurrentWorkspaceID(),
	})
}

func (s *Server) handleCreateWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ws, err := s.board.CreateWorkspace(c.Request.Context(), req.Name)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"workspace": ws})
}

func (s *Server) handleUpdateWorkspace(c *gin.Context) {
	id := c.Param("id")
	if s.board.Workspace(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("workspace not found"))
		return
	}

	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.board.UpdateWorkspace(c.Request.Context(), id, req.Name, req.TaskTypes); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workspace": s.board.Workspace(id)})
}

func (s *Server) handleDeleteWorkspace(c *gin.Context) {
	id := c.Param("id")
	if s.board.Workspace(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("workspace not found"))
		return
	}
	if err := s.board.DeleteWorkspace(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleSelectWorkspace(c *gin.Context) {
	id := c.Param("id")
	if s.board.Workspace(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("workspace not found"))
		return
	}
	if err := s.board.SetCurrentWorkspace(c.Request.Context(), id); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"current": id})
}

func (s *Server) handleListWorkspaceTasks(c *gin.Context) {
	id := c.Param("id")
	if s.board.Workspace(id) == nil {
		s.respondError(c, http.StatusNotFound, errors.New("workspace not found"))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": s.board.TasksByWorkspace(id)})
}

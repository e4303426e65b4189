package views

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mradamcox/ohmg/dispatch"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/sessions"
)

// SessionController exposes the session lifecycle over HTTP. Runs are
// enqueued, not executed inline, so the response only acknowledges the
// request; clients poll the session for its terminal status.
type SessionController struct {
	Engine     *sessions.Engine
	Dispatcher dispatch.Dispatcher
}

type startSessionRequest struct {
	Kind      string `json:"kind" binding:"required"`
	SubjectID uint   `json:"subject_id" binding:"required"`
	Username  string `json:"username"`
}

func (ctl *SessionController) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := ctl.Engine.Start(c.Request.Context(), req.Kind, req.SubjectID, req.Username)
	if err != nil {
		if errors.Is(err, sessions.ErrUnknownKind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

type sessionDataRequest struct {
	Data map[string]interface{} `json:"data"`
}

// SetSessionData stores the run payload (mask polygon, overrides) on an
// unstarted session before it is enqueued.
func (ctl *SessionController) SetSessionData(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req sessionDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := ctl.Engine.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if s.Stage != models.StageInput {
		c.JSON(http.StatusConflict, gin.H{"error": "session already ran"})
		return
	}
	if err := s.SetData(req.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := models.DB.Model(&models.Session{}).Where("id = ?", s.ID).Update("data", s.Data).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

func (ctl *SessionController) RunSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if _, err := ctl.Engine.Get(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctl.Dispatcher.Enqueue(id)
	c.JSON(http.StatusAccepted, gin.H{"session_id": id, "queued": true})
}

func (ctl *SessionController) UndoSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	err := ctl.Engine.Undo(c.Request.Context(), id, false)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"session_id": id, "undone": true})
	case errors.Is(err, sessions.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (ctl *SessionController) RedoSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	err := ctl.Engine.Redo(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"session_id": id, "redone": true})
	case errors.Is(err, sessions.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sessions.ErrSessionLocked):
		c.JSON(http.StatusLocked, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (ctl *SessionController) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := ctl.Engine.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// ListSessions filters by kind and/or document id when the query params are
// present; zero values mean no filter.
func (ctl *SessionController) ListSessions(c *gin.Context) {
	kind := c.Query("kind")
	var documentID uint
	if v := c.Query("document_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad document_id"})
			return
		}
		documentID = uint(n)
	}
	list, err := ctl.Engine.List(c.Request.Context(), kind, documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
}

func (ctl *SessionController) DeleteExpired(c *gin.Context) {
	n, err := ctl.Engine.DeleteExpiredSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func sessionID(c *gin.Context) (uint, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad session id"})
		return 0, false
	}
	return uint(n), true
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coverspark/coverspark/internal/export"
	"github.com/coverspark/coverspark/internal/history"
	"github.com/coverspark/coverspark/internal/orchestrator"
	"github.com/coverspark/coverspark/internal/security"
	"github.com/coverspark/coverspark/pkg/models"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, models.ErrEmptyTopic):
		status, code = http.StatusBadRequest, "empty_topic"
	case errors.Is(err, orchestrator.ErrGenerationInProgress):
		status, code = http.StatusConflict, "generation_in_progress"
	case errors.Is(err, orchestrator.ErrNoActiveSession):
		status, code = http.StatusConflict, "no_active_session"
	case errors.Is(err, orchestrator.ErrReferenceLocked):
		status, code = http.StatusConflict, "reference_locked"
	case errors.Is(err, models.ErrCardIndex):
		status, code = http.StatusNotFound, "card_not_found"
	case errors.Is(err, history.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, security.ErrImageTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "image_too_large"
	case errors.Is(err, security.ErrUnsupportedImageType),
		errors.Is(err, security.ErrInvalidDataURL),
		errors.Is(err, security.ErrEmptyImage):
		status, code = http.StatusBadRequest, "invalid_image"
	}

	c.JSON(status, errorEnvelope{Error: apiError{Message: err.Error(), Code: code}})
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type submitRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Error: apiError{Message: err.Error(), Code: "bad_request"}})
		return
	}

	if _, err := s.orch.Submit(c.Request.Context(), req.Topic); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.orch.Snapshot())
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleHistory(c *gin.Context) {
	summaries, err := s.orch.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (s *Server) handleSelect(c *gin.Context) {
	if err := s.orch.SelectSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.orch.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleNewDraft(c *gin.Context) {
	s.orch.NewDraft()
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

type referenceRequest struct {
	DataURL string `json:"data_url"`
}

func (s *Server) handleAttachReference(c *gin.Context) {
	var req referenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Error: apiError{Message: err.Error(), Code: "bad_request"}})
		return
	}

	if err := s.orch.AttachReferenceDataURL(req.DataURL); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleClearReference(c *gin.Context) {
	if err := s.orch.ClearReference(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

type regenerateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleRegenerate(c *gin.Context) {
	index, err := cardIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req regenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorEnvelope{Error: apiError{Message: err.Error(), Code: "bad_request"}})
			return
		}
	}

	if err := s.orch.RegenerateCard(c.Request.Context(), index, req.Prompt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.orch.Snapshot())
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleUpdatePrompt(c *gin.Context) {
	index, err := cardIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope{Error: apiError{Message: err.Error(), Code: "bad_request"}})
		return
	}

	if err := s.orch.UpdatePrompt(index, req.Prompt); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleCardImage(c *gin.Context) {
	index, err := cardIndex(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sessionID := c.Param("id")

	payload, err := s.orch.CardImage(c.Request.Context(), sessionID, index)
	if err != nil {
		respondError(c, err)
		return
	}

	img, err := export.Decode(payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(sessionID, index, img)))
	c.Data(http.StatusOK, img.MediaType, img.Data)
}

func cardIndex(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", models.ErrCardIndex, c.Param("index"))
	}
	return index, nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/characters"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxImageBytes = 10 << 20

type characterRequestPayload struct {
	Name           string  `json:"name"`
	Race           string  `json:"race"`
	Planet         string  `json:"planet"`
	Transformation string  `json:"transformation"`
	Technique      string  `json:"technique"`
	ImageURL       *string `json:"imageUrl"`
}

func (payload characterRequestPayload) input() characters.Input {
	return characters.Input{
		Name:           payload.Name,
		Race:           payload.Race,
		Planet:         payload.Planet,
		Transformation: payload.Transformation,
		Technique:      payload.Technique,
		ImageURL:       payload.ImageURL,
	}
}

type characterResponsePayload struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Race           string  `json:"race"`
	Planet         string  `json:"planet"`
	Transformation string  `json:"transformation"`
	Technique      string  `json:"technique"`
	ImageURL       *string `json:"imageUrl"`
}

func newCharacterResponse(character characters.Character) characterResponsePayload {
	return characterResponsePayload{
		ID:             character.ID,
		Name:           character.Name,
		Race:           character.Race,
		Planet:         character.Planet,
		Transformation: character.Transformation,
		Technique:      character.Technique,
		ImageURL:       character.ImageURL,
	}
}

type imageResponsePayload struct {
	ImageURL string `json:"imageUrl"`
}

func (h *httpHandler) handleListCharacters(c *gin.Context) {
	records, err := h.characters.List(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response := make([]characterResponsePayload, 0, len(records))
	for _, record := range records {
		response = append(response, newCharacterResponse(record))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetCharacter(c *gin.Context) {
	id, ok := parseCharacterID(c)
	if !ok {
		return
	}
	character, err := h.characters.Get(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCharacterResponse(character))
}

func (h *httpHandler) handleCreateCharacter(c *gin.Context) {
	var request characterRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.characters.Create(c.Request.Context(), request.input())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/characters/%d", created.ID))
	c.JSON(http.StatusCreated, newCharacterResponse(created))
}

func (h *httpHandler) handleUpdateCharacter(c *gin.Context) {
	id, ok := parseCharacterID(c)
	if !ok {
		return
	}
	var request characterRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.characters.Update(c.Request.Context(), id, request.input())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCharacterResponse(updated))
}

func (h *httpHandler) handleDeleteCharacter(c *gin.Context) {
	id, ok := parseCharacterID(c)
	if !ok {
		return
	}
	if err := h.characters.Delete(c.Request.Context(), id); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	id, ok := parseCharacterID(c)
	if !ok {
		return
	}
	character, err := h.characters.Get(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if c.Request.ContentLength == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_image"})
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	url, err := h.images.Upload(c.Request.Context(), character.Name, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large"})
			return
		}
		h.logger.Error("failed to upload character image", zap.Int64("character_id", id.Int64()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image_upload_failed"})
		return
	}
	c.JSON(http.StatusOK, imageResponsePayload{ImageURL: url})
}

func parseCharacterID(c *gin.Context) (characters.CharacterID, bool) {
	id, err := characters.ParseCharacterID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, characters.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_character", "message": err.Error()})
	case errors.Is(err, characters.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request_canceled"})
	default:
		h.logger.Error("character request failed", zap.String("path", c.FullPath()), zap.Error(err))
		payload := gin.H{"error": "storage_unavailable"}
		var serviceErr *characters.ServiceError
		if errors.As(err, &serviceErr) {
			payload["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, payload)
	}
}

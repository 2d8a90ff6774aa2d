package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/service"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type profileService interface {
	Get(ctx context.Context, actor service.Actor) (*service.Profile, error)
	Update(ctx context.Context, actor service.Actor, req dto.UpdateProfileRequest, uploads dto.ProfileUploads) (*service.Profile, error)
	OpenPhoto(ctx context.Context, token string) (io.ReadCloser, string, error)
}

// ProfileHandler serves the signed-in member's profile.
type ProfileHandler struct {
	service  profileService
	maxBytes int64
}

// NewProfileHandler constructs the handler. Uploads are read up to one byte
// past maxBytes so the service can report the oversize file.
func NewProfileHandler(svc profileService, maxBytes int64) *ProfileHandler {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &ProfileHandler{service: svc, maxBytes: maxBytes}
}

// Get godoc
// @Summary Own profile
// @Tags Profile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	profile, err := h.service.Get(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Update godoc
// @Summary Update own profile
// @Description Accepts JSON, or multipart form data carrying license_photo and medical_id_photo
// @Tags Profile
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param license_photo formData file false "Licence photo (JPEG or PNG)"
// @Param medical_id_photo formData file false "Medical ID photo (JPEG or PNG)"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var (
		req     dto.UpdateProfileRequest
		uploads dto.ProfileUploads
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid profile payload"))
			return
		}
		var err error
		if uploads.LicensePhoto, err = h.formFile(c, "license_photo"); err != nil {
			response.Error(c, err)
			return
		}
		if uploads.MedicalIDPhoto, err = h.formFile(c, "medical_id_photo"); err != nil {
			response.Error(c, err)
			return
		}
	} else if !bindJSON(c, &req, "invalid profile payload") {
		return
	}

	profile, err := h.service.Update(c.Request.Context(), actor, req, uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

func (h *ProfileHandler) formFile(c *gin.Context, field string) (*dto.ProfileUpload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload "+field)
	}
	data, err := readUpload(header, h.maxBytes+1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	return &dto.ProfileUpload{Filename: header.Filename, Data: data}, nil
}

func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, limit))
}

// Photo godoc
// @Summary Download a profile photo
// @Description The token comes from a signed photo URL in the profile payload
// @Tags Profile
// @Produce image/jpeg
// @Produce image/png
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *ProfileHandler) Photo(c *gin.Context) {
	reader, contentType, err := h.service.OpenPhoto(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, contentType, reader, nil)
}

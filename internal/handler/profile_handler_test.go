package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/internal/service"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
)

type fakeProfileService struct {
	req     dto.UpdateProfileRequest
	uploads dto.ProfileUploads
	token   string
	err     error
}

func (f *fakeProfileService) Get(_ context.Context, actor service.Actor) (*service.Profile, error) {
	return &service.Profile{User: &models.User{ID: actor.ID}}, f.err
}

func (f *fakeProfileService) Update(_ context.Context, actor service.Actor, req dto.UpdateProfileRequest, uploads dto.ProfileUploads) (*service.Profile, error) {
	f.req, f.uploads = req, uploads
	return &service.Profile{User: &models.User{ID: actor.ID}}, f.err
}

func (f *fakeProfileService) OpenPhoto(_ context.Context, token string) (io.ReadCloser, string, error) {
	f.token = token
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(strings.NewReader("png-bytes")), "image/png", nil
}

func TestProfileHandlerMultipartUpdate(t *testing.T) {
	svc := &fakeProfileService{}
	handler := NewProfileHandler(svc, 4)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("first_name", "Jane"))
	part, err := writer.CreateFormFile("license_photo", "licence.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	c, rec := newTestContext(http.MethodPut, "/profile", nil, studentClaims())
	c.Request.Body = io.NopCloser(body)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	handler.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.req.FirstName)
	assert.Equal(t, "Jane", *svc.req.FirstName)
	require.NotNil(t, svc.uploads.LicensePhoto)
	assert.Equal(t, "licence.png", svc.uploads.LicensePhoto.Filename)
	// read one byte past the limit so the service can reject the file
	assert.Equal(t, []byte("01234"), svc.uploads.LicensePhoto.Data)
	assert.Nil(t, svc.uploads.MedicalIDPhoto)
}

func TestProfileHandlerJSONUpdate(t *testing.T) {
	svc := &fakeProfileService{}
	handler := NewProfileHandler(svc, 0)
	c, rec := newTestContext(http.MethodPut, "/profile", map[string]string{"email": "jane@example.org"}, studentClaims())

	handler.Update(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.req.Email)
	assert.Equal(t, "jane@example.org", *svc.req.Email)
	assert.Nil(t, svc.uploads.LicensePhoto)
}

func TestProfileHandlerPhotoDownload(t *testing.T) {
	svc := &fakeProfileService{}
	handler := NewProfileHandler(svc, 0)
	c, rec := newTestContext(http.MethodGet, "/files/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.Photo(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", svc.token)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", rec.Body.String())
}

func TestProfileHandlerPhotoExpired(t *testing.T) {
	handler := NewProfileHandler(&fakeProfileService{err: appErrors.Clone(appErrors.ErrForbidden, "download link expired")}, 0)
	c, rec := newTestContext(http.MethodGet, "/files/tok", nil, nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.Photo(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

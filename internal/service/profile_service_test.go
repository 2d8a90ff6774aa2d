package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/storage"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

type memoryStore struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key, _ string, data []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

type stubProfileRepo struct {
	users     map[string]*models.User
	updateErr error
}

func (s *stubProfileRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubProfileRepo) UpdateProfile(_ context.Context, id string, apply func(*models.User) error) (*models.User, *models.User, error) {
	current, ok := s.users[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	before := *current
	after := *current
	if err := apply(&after); err != nil {
		return nil, nil, err
	}
	if s.updateErr != nil {
		return nil, nil, s.updateErr
	}
	s.users[id] = &after
	return &before, &after, nil
}

func newProfileFixture() (*ProfileService, *stubProfileRepo, *memoryStore) {
	repo := &stubProfileRepo{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Email: "stu@example.com", FirstName: "Sam", UserType: models.UserTypeStudent, StudentLicensePhoto: "old.png"},
		"ins-1": {ID: "ins-1", Email: "ins@example.com", UserType: models.UserTypeInstructor},
	}}
	store := newMemoryStore()
	store.objects["old.png"] = pngHeader
	signer := storage.NewSignedURLSigner("secret", time.Minute)
	svc := NewProfileService(repo, store, signer, nil, zap.NewNop(), ProfileConfig{MaxUploadBytes: 64})
	return svc, repo, store
}

func TestProfileUpdateReplacesPhotoAfterCommit(t *testing.T) {
	svc, repo, store := newProfileFixture()
	collector := NewAuditCollector()
	ctx := WithAuditCollector(context.Background(), collector)

	name := "Samantha"
	profile, err := svc.Update(ctx, studentActor, dto.UpdateProfileRequest{FirstName: &name},
		dto.ProfileUploads{LicensePhoto: &dto.ProfileUpload{Filename: "licence.png", Data: pngHeader}})
	require.NoError(t, err)

	key := repo.users["stu-1"].StudentLicensePhoto
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, "old.png", key)
	assert.Contains(t, store.objects, key)
	assert.Equal(t, []string{"old.png"}, store.deleted)
	assert.Equal(t, "Samantha", profile.User.FirstName)
	assert.True(t, strings.HasPrefix(profile.LicensePhotoURL, "/api/v1/files/"))

	entries := collector.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.TableUsers, entries[0].TableName)
	assert.Equal(t, key, entries[0].NewValues["student_license_photo"])
}

func TestProfileUpdateRemovesNewFilesWhenTransactionFails(t *testing.T) {
	svc, repo, store := newProfileFixture()
	repo.updateErr = errors.New("db down")

	_, err := svc.Update(context.Background(), studentActor, dto.UpdateProfileRequest{},
		dto.ProfileUploads{MedicalIDPhoto: &dto.ProfileUpload{Data: jpegHeader}})
	assertAppError(t, err, appErrors.ErrInternal.Code)

	require.Len(t, store.deleted, 1)
	assert.True(t, strings.HasSuffix(store.deleted[0], ".jpg"))
	assert.Contains(t, store.objects, "old.png")
}

func TestProfileUpdateRejectsBadUploads(t *testing.T) {
	svc, _, store := newProfileFixture()

	_, err := svc.Update(context.Background(), studentActor, dto.UpdateProfileRequest{},
		dto.ProfileUploads{LicensePhoto: &dto.ProfileUpload{Data: []byte("%PDF-1.4 not an image")}})
	assertAppError(t, err, appErrors.ErrUnsupportedMedia.Code)

	big := append(append([]byte{}, pngHeader...), make([]byte, 100)...)
	_, err = svc.Update(context.Background(), studentActor, dto.UpdateProfileRequest{},
		dto.ProfileUploads{LicensePhoto: &dto.ProfileUpload{Data: big}})
	assertAppError(t, err, appErrors.ErrPayloadTooLarge.Code)

	_, err = svc.Update(context.Background(), instructorActor, dto.UpdateProfileRequest{},
		dto.ProfileUploads{LicensePhoto: &dto.ProfileUpload{Data: pngHeader}})
	assertAppError(t, err, appErrors.ErrForbidden.Code)

	assert.Len(t, store.objects, 1)
}

func TestProfileUpdateValidatesFields(t *testing.T) {
	svc, _, _ := newProfileFixture()

	email := "not-an-email"
	_, err := svc.Update(context.Background(), studentActor, dto.UpdateProfileRequest{Email: &email}, dto.ProfileUploads{})
	assertAppError(t, err, appErrors.ErrValidation.Code)

	expiry := "31/12/2026"
	_, err = svc.Update(context.Background(), studentActor, dto.UpdateProfileRequest{LicenseExpirationDate: &expiry}, dto.ProfileUploads{})
	assertAppError(t, err, appErrors.ErrValidation.Code)
}

func TestProfileOpenPhotoWithSignedToken(t *testing.T) {
	svc, _, _ := newProfileFixture()

	profile, err := svc.Get(context.Background(), studentActor)
	require.NoError(t, err)
	token := strings.TrimPrefix(profile.LicensePhotoURL, "/api/v1/files/")

	reader, contentType, err := svc.OpenPhoto(context.Background(), token)
	require.NoError(t, err)
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", contentType)

	_, _, err = svc.OpenPhoto(context.Background(), token+"x")
	assertAppError(t, err, appErrors.ErrForbidden.Code)
}

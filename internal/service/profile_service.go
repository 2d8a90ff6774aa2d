package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gliding-club-api/internal/dto"
	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/storage"
)

// Photo kinds addressable through signed URLs.
const (
	PhotoKindLicense   = "license"
	PhotoKindMedicalID = "medical_id"
)

const defaultMaxUploadBytes = 5 << 20

var defaultPhotoTypes = []string{"image/jpeg", "image/png"}

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, apply func(current *models.User) error) (*models.User, *models.User, error)
}

type tokenSigner interface {
	Generate(subject, value string) (string, time.Time, error)
	Parse(token string) (subject, value string, err error)
}

type urlPresigner interface {
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ProfileConfig tunes uploads and download links.
type ProfileConfig struct {
	APIPrefix        string
	MaxUploadBytes   int64
	AllowedMIMETypes []string
	URLTTL           time.Duration
}

// Profile is the caller's own profile with download links for the photos.
type Profile struct {
	User              *models.User `json:"user"`
	LicenseStatus     string       `json:"license_status,omitempty"`
	LicensePhotoURL   string       `json:"license_photo_url,omitempty"`
	MedicalIDPhotoURL string       `json:"medical_id_photo_url,omitempty"`
}

// ProfileService manages member profiles and licence photo uploads.
type ProfileService struct {
	users     profileRepository
	store     storage.ObjectStore
	signer    tokenSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ProfileConfig
	now       func() time.Time
}

// NewProfileService constructs the service.
func NewProfileService(users profileRepository, store storage.ObjectStore, signer tokenSigner, validate *validator.Validate, logger *zap.Logger, cfg ProfileConfig) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.AllowedMIMETypes) == 0 {
		cfg.AllowedMIMETypes = defaultPhotoTypes
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ProfileService{users: users, store: store, signer: signer, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// Get returns the actor's profile.
func (s *ProfileService) Get(ctx context.Context, actor Actor) (*Profile, error) {
	user, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return s.profile(ctx, user), nil
}

// Update applies profile changes and stores any uploaded photos. Files are
// written before the transaction; replaced files are removed only after it
// commits and new files are removed again when it fails.
func (s *ProfileService) Update(ctx context.Context, actor Actor, req dto.UpdateProfileRequest, uploads dto.ProfileUploads) (*Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	var expiry *time.Time
	if req.LicenseExpirationDate != nil && strings.TrimSpace(*req.LicenseExpirationDate) != "" {
		parsed, err := parseDate("license_expiration_date", *req.LicenseExpirationDate)
		if err != nil {
			return nil, err
		}
		expiry = &parsed
	}
	if (uploads.LicensePhoto != nil || uploads.MedicalIDPhoto != nil) && !actor.isStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can upload licence photos")
	}

	var stored []string
	licenseKey, err := s.storeUpload(ctx, "student_license_photo", uploads.LicensePhoto)
	if err != nil {
		return nil, err
	}
	if licenseKey != "" {
		stored = append(stored, licenseKey)
	}
	medicalKey, err := s.storeUpload(ctx, "student_medical_id_photo", uploads.MedicalIDPhoto)
	if err != nil {
		s.removeFiles(ctx, stored)
		return nil, err
	}
	if medicalKey != "" {
		stored = append(stored, medicalKey)
	}

	var replaced []string
	before, after, err := s.users.UpdateProfile(ctx, actor.ID, func(current *models.User) error {
		if req.Email != nil {
			current.Email = strings.TrimSpace(*req.Email)
		}
		if req.FirstName != nil {
			current.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			current.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.StudentLicenseNumber != nil {
			current.StudentLicenseNumber = strings.TrimSpace(*req.StudentLicenseNumber)
		}
		if req.InstructorLicenseNumber != nil {
			current.InstructorLicenseNumber = strings.TrimSpace(*req.InstructorLicenseNumber)
		}
		if req.LicenseExpirationDate != nil {
			current.LicenseExpirationDate = expiry
		}
		if licenseKey != "" {
			if current.StudentLicensePhoto != "" {
				replaced = append(replaced, current.StudentLicensePhoto)
			}
			current.StudentLicensePhoto = licenseKey
		}
		if medicalKey != "" {
			if current.StudentMedicalIDPhoto != "" {
				replaced = append(replaced, current.StudentMedicalIDPhoto)
			}
			current.StudentMedicalIDPhoto = medicalKey
		}
		return nil
	})
	if err != nil {
		s.removeFiles(ctx, stored)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	s.removeFiles(ctx, replaced)
	auditUpdate(ctx, models.TableUsers, actor.ID, profileAuditView(before), profileAuditView(after))
	return s.profile(ctx, after), nil
}

// OpenPhoto resolves a signed download token.
func (s *ProfileService) OpenPhoto(ctx context.Context, token string) (io.ReadCloser, string, error) {
	_, key, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	contentType := "image/jpeg"
	if strings.HasSuffix(key, ".png") {
		contentType = "image/png"
	}
	return reader, contentType, nil
}

func (s *ProfileService) profile(ctx context.Context, user *models.User) *Profile {
	return &Profile{
		User:              user,
		LicenseStatus:     user.LicenseStatus(s.now()),
		LicensePhotoURL:   s.photoURL(ctx, user.ID, user.StudentLicensePhoto),
		MedicalIDPhotoURL: s.photoURL(ctx, user.ID, user.StudentMedicalIDPhoto),
	}
}

// photoURL prefers a native presigned link when the store offers one.
func (s *ProfileService) photoURL(ctx context.Context, userID, key string) string {
	if key == "" {
		return ""
	}
	if presigner, ok := s.store.(urlPresigner); ok {
		url, err := presigner.PresignedURL(ctx, key, s.cfg.URLTTL)
		if err == nil {
			return url
		}
		s.logger.Warn("presign failed, falling back to signed token", zap.String("key", key), zap.Error(err))
	}
	token, _, err := s.signer.Generate(userID, key)
	if err != nil {
		s.logger.Error("failed to sign photo url", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s/files/%s", s.cfg.APIPrefix, token)
}

func (s *ProfileService) storeUpload(ctx context.Context, field string, upload *dto.ProfileUpload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if len(upload.Data) == 0 {
		return "", fieldError(field, "file is empty")
	}
	if int64(len(upload.Data)) > s.cfg.MaxUploadBytes {
		return "", appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file must be at most %d MB", s.cfg.MaxUploadBytes>>20)),
			map[string]string{field: "file too large"})
	}
	contentType := http.DetectContentType(upload.Data)
	ext, ok := s.photoExtension(contentType)
	if !ok {
		return "", appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrUnsupportedMedia, "only JPEG and PNG images are accepted"),
			map[string]string{field: contentType})
	}

	key := uuid.NewString() + "." + ext
	if err := s.store.Put(ctx, key, contentType, upload.Data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return key, nil
}

func (s *ProfileService) photoExtension(contentType string) (string, bool) {
	allowed := false
	for _, t := range s.cfg.AllowedMIMETypes {
		if strings.EqualFold(t, contentType) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", false
	}
	switch contentType {
	case "image/jpeg":
		return "jpg", true
	case "image/png":
		return "png", true
	default:
		return "", false
	}
}

func (s *ProfileService) removeFiles(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("failed to delete stored file", zap.String("key", key), zap.Error(err))
		}
	}
}

// profileAuditView exposes the photo keys, which the JSON form of User hides.
func profileAuditView(u *models.User) map[string]interface{} {
	if u == nil {
		return nil
	}
	view := fieldMap(u)
	view["student_license_photo"] = u.StudentLicensePhoto
	view["student_medical_id_photo"] = u.StudentMedicalIDPhoto
	return view
}

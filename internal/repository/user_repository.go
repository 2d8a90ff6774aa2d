package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gliding-club-api/internal/models"
)

const userColumns = `id, username, email, first_name, last_name, password_hash, user_type, is_active, student_license_number, student_license_photo, student_medical_id_photo, instructor_license_number, license_expiration_date, password_change_required, last_login, created_at, updated_at`

// UserRepository provides database access for club members.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername matches the username case-insensitively.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindAllByEmail returns every user whose email matches case-insensitively.
func (r *UserRepository) FindAllByEmail(ctx context.Context, email string) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) ORDER BY created_at`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, email); err != nil {
		return nil, fmt.Errorf("find users by email: %w", err)
	}
	return users, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword stores a new hash and clears the forced-change flag.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, password_change_required = FALSE, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserType != nil {
		conditions = append(conditions, fmt.Sprintf("user_type = $%d", len(args)+1))
		args = append(args, *filter.UserType)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(username) LIKE $%d OR LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(student_license_number) LIKE $%d)", n, n, n, n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"username":   true,
		"last_name":  true,
		"created_at": true,
		"last_login": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "last_name"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize, 20)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, username ASC LIMIT %d OFFSET %d", userColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// ListActiveByType returns every active user of the given type.
func (r *UserRepository) ListActiveByType(ctx context.Context, userType models.UserType) ([]models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_type = $1 AND is_active = TRUE ORDER BY last_name, first_name, username`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, userType); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, username, email, first_name, last_name, password_hash, user_type, is_active, student_license_number, instructor_license_number, license_expiration_date, password_change_required, created_at, updated_at) VALUES (:id, :username, :email, :first_name, :last_name, :password_hash, :user_type, :is_active, :student_license_number, :instructor_license_number, :license_expiration_date, :password_change_required, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile runs the profile update inside a transaction. The callback
// receives the locked row and may reject the change before it is written.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, apply func(current *models.User) error) (before, after *models.User, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin profile transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.User
	const selectQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, selectQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("lock user: %w", err)
	}
	previous := current

	if err = apply(&current); err != nil {
		return nil, nil, err
	}
	current.UpdatedAt = time.Now().UTC()

	const updateQuery = `UPDATE users SET email = :email, first_name = :first_name, last_name = :last_name, student_license_number = :student_license_number, student_license_photo = :student_license_photo, student_medical_id_photo = :student_medical_id_photo, instructor_license_number = :instructor_license_number, license_expiration_date = :license_expiration_date, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateQuery, &current); err != nil {
		return nil, nil, fmt.Errorf("update profile: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit profile: %w", err)
	}
	return &previous, &current, nil
}

// CountActive returns the number of active users, used by health checks.
func (r *UserRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users WHERE is_active = TRUE`); err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return total, nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its hashed value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// FindBySocialAccount returns the user already linked to provider+subject.
func (r *UserRepository) FindBySocialAccount(ctx context.Context, provider, subject string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = (SELECT user_id FROM social_accounts WHERE provider = $1 AND subject = $2)`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, provider, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by social account: %w", err)
	}
	return &user, nil
}

// UpsertSocialAccount links provider+subject to a user, refreshing metadata.
func (r *UserRepository) UpsertSocialAccount(ctx context.Context, account *models.SocialAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.LastUsedAt = now
	const query = `INSERT INTO social_accounts (id, user_id, provider, subject, email, extra_data, created_at, last_used_at) VALUES (:id, :user_id, :provider, :subject, :email, :extra_data, :created_at, :last_used_at)
ON CONFLICT (provider, subject) DO UPDATE SET user_id = EXCLUDED.user_id, email = EXCLUDED.email, extra_data = EXCLUDED.extra_data, last_used_at = EXCLUDED.last_used_at`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("upsert social account: %w", err)
	}
	return nil
}

// normalizePage clamps page numbers and sizes.
func normalizePage(page, pageSize, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = fallback
	}
	return page, pageSize
}

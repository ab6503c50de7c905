package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"chatgate/internal/app/user"
	"chatgate/internal/pkg/errs"
)

// Credentials is an email account with its password hash.
type Credentials struct {
	Identity     user.Identity
	PasswordHash string
}

// NewEmailUser is the input of CreateEmailUser.
type NewEmailUser struct {
	Username     string
	Email        string
	PasswordHash string
}

const identityColumns = `
	u.id, u.username, COALESCE(e.email, ''), COALESCE(u.avatar_url, ''),
	u.role, u.status, u.provider_type`

func scanIdentity(row interface{ Scan(dest ...any) error }, extra ...any) (user.Identity, error) {
	var id user.Identity
	dest := append([]any{
		&id.ID, &id.Username, &id.Email, &id.AvatarURL,
		&id.Role, &id.Status, &id.ProviderType,
	}, extra...)
	return id, row.Scan(dest...)
}

// CreateEmailUser inserts a user and its email login in one transaction.
// A taken email is ErrUserAlreadyExists.
func (s *Store) CreateEmailUser(ctx context.Context, in NewEmailUser) (user.Identity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return user.Identity{}, errs.Wrap(errs.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := user.Identity{
		Username:     in.Username,
		Email:        in.Email,
		Role:         user.RoleUser,
		Status:       user.StatusActive,
		ProviderType: user.ProviderEmail,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, role, provider_type, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		id.Username, id.Role, id.ProviderType, id.Status,
	).Scan(&id.ID)
	if err != nil {
		return user.Identity{}, errs.Wrap(errs.ErrPersistence, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO email_users (user_id, email, password_hash)
		VALUES ($1, $2, $3)`,
		id.ID, in.Email, in.PasswordHash,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.Identity{}, errs.NewError(errs.ErrUserAlreadyExists)
		}
		return user.Identity{}, errs.Wrap(errs.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return user.Identity{}, errs.Wrap(errs.ErrPersistence, err)
	}

	return id, nil
}

// GetCredentialsByEmail returns the email account or ErrUserNotFound.
func (s *Store) GetCredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+identityColumns+`, e.password_hash
		FROM email_users e
		JOIN users u ON u.id = e.user_id
		WHERE e.email = $1`,
		email,
	)

	var c Credentials
	id, err := scanIdentity(row, &c.PasswordHash)
	if err != nil {
		return Credentials{}, notFound(err, errs.ErrUserNotFound)
	}
	c.Identity = id
	return c, nil
}

// GetIdentity returns the current identity of id or ErrUserNotFound.
func (s *Store) GetIdentity(ctx context.Context, id int64) (user.Identity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+identityColumns+`
		FROM users u
		LEFT JOIN email_users e ON e.user_id = u.id
		WHERE u.id = $1`,
		id,
	)

	identity, err := scanIdentity(row)
	if err != nil {
		return user.Identity{}, notFound(err, errs.ErrUserNotFound)
	}
	return identity, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchUsers returns up to limit active accounts whose username or email contains query,
// case-insensitively. excludeID is left out of the result.
func (s *Store) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]user.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+identityColumns+`
		FROM users u
		LEFT JOIN email_users e ON e.user_id = u.id
		WHERE u.status = 'active' AND u.id <> $2
		  AND (u.username ILIKE $1 ESCAPE '\' OR e.email ILIKE $1 ESCAPE '\')
		ORDER BY u.username, u.id
		LIMIT $3`,
		"%"+likeEscaper.Replace(query)+"%", excludeID, limit,
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Identity, error) {
		return scanIdentity(row)
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, err)
	}
	return users, nil
}

// ListUsers returns one page of accounts ordered by id. hasMore reports whether later
// pages exist.
func (s *Store) ListUsers(ctx context.Context, page, limit int) ([]user.Identity, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+identityColumns+`
		FROM users u
		LEFT JOIN email_users e ON e.user_id = u.id
		ORDER BY u.id
		LIMIT $1 OFFSET $2`,
		limit+1, (page-1)*limit,
	)
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrPersistence, err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Identity, error) {
		return scanIdentity(row)
	})
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrPersistence, err)
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}
	return users, hasMore, nil
}

package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// Repository owns users, roles, permissions and provider-account links.
// All consistency under concurrent requests relies on the database's
// uniqueness constraints, not in-process locking.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, login, password_hash, first_name, last_name, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Login, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (r *Repository) GetUserByLogin(ctx context.Context, login string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE login = $1
	`, login))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by login: %w", err)
	}
	return user, nil
}

// CreateUser inserts the user row and its default-role membership in one
// transaction. The default role must already be seeded; its absence is a
// bootstrap problem, not a user-facing one.
func (r *Repository) CreateUser(ctx context.Context, login, password, firstName, lastName, defaultRole string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin create user tx: %w", err)
	}
	defer tx.Rollback()

	var roleID uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, defaultRole).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("%w: %q", ErrRoleNotFound, defaultRole)
		}
		return User{}, fmt.Errorf("query default role: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, login, password_hash, first_name, last_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
	`, id, login, string(hash), firstName, lastName, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	membershipID, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate membership id: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, membershipID, id, roleID, now)
	if err != nil {
		return User{}, fmt.Errorf("insert user role membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit create user tx: %w", err)
	}

	return User{
		ID:        id,
		Login:     login,
		FirstName: firstName,
		LastName:  lastName,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, login, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE login = $1
	`, login, string(hash), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repository) RolesByUserID(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query roles by user: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// PermissionsByLogin flattens the user -> roles -> permissions join into
// permission names.
func (r *Repository) PermissionsByLogin(ctx context.Context, login string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		JOIN users u ON u.id = ur.user_id
		WHERE u.login = $1
		ORDER BY p.name
	`, login)
	if err != nil {
		return nil, fmt.Errorf("query permissions by login: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		permissions = append(permissions, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return permissions, nil
}

func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		WHERE name = $1
	`, name).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("query role by name: %w", err)
	}
	return role, nil
}

func (r *Repository) ListRoles(ctx context.Context, limit, offset int) ([]Role, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM roles
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Role{}, fmt.Errorf("generate role id: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, id, name, description, now)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrDuplicate
		}
		return Role{}, fmt.Errorf("insert role: %w", err)
	}

	return Role{ID: id, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *Repository) UpdateRole(ctx context.Context, name, description string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE roles
		SET description = $2, updated_at = $3
		WHERE name = $1
	`, name, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *Repository) DeleteRoleByName(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *Repository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate membership id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, id, userID, roleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *Repository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role_id = $2
	`, userID, roleID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

func (r *Repository) ProviderAccountByUser(ctx context.Context, userID uuid.UUID, provider string) (ProviderAccount, error) {
	var account ProviderAccount
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, id_social, provider_name, created_at
		FROM provider_accounts
		WHERE user_id = $1 AND provider_name = $2
	`, userID, provider).Scan(&account.ID, &account.UserID, &account.IDSocial, &account.ProviderName, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProviderAccount{}, ErrProviderAccountNotFound
		}
		return ProviderAccount{}, fmt.Errorf("query provider account: %w", err)
	}
	return account, nil
}

func (r *Repository) AddProviderAccount(ctx context.Context, userID uuid.UUID, idSocial, provider string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate provider account id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO provider_accounts (id, user_id, id_social, provider_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, idSocial, provider, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert provider account: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrRoleNotFound            = errors.New("role not found")
	ErrProviderAccountNotFound = errors.New("provider account not found")
	ErrDuplicate               = errors.New("duplicate row")
)

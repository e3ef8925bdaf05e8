// Package pg is the PostgreSQL-backed credential store. Every unit of work
// maps to one database transaction, so commit and rollback semantics come
// straight from the database.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authly.org/internal/auth"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests with a mock driver.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Begin(ctx context.Context) (auth.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Commit(ctx context.Context) error   { return u.tx.Commit() }
func (u *unitOfWork) Rollback(ctx context.Context) error { return u.tx.Rollback() }

func (u *unitOfWork) Organizations() auth.OrganizationStore { return &organizationStore{u.tx} }
func (u *unitOfWork) Users() auth.UserStore                 { return &userStore{u.tx} }
func (u *unitOfWork) Roles() auth.RoleStore                 { return &roleStore{u.tx} }
func (u *unitOfWork) Scopes() auth.ScopeStore               { return &scopeStore{u.tx} }
func (u *unitOfWork) Sessions() auth.SessionStore           { return &sessionStore{u.tx} }

// --- organizations ---

type organizationStore struct {
	tx *sql.Tx
}

func (r *organizationStore) Add(ctx context.Context, org *auth.Organization) error {
	if _, err := r.tx.ExecContext(ctx, `
		insert into organizations(id, name, created_at, updated_at)
		values ($1,$2,$3,$4)
	`, org.ID, org.Name, org.CreatedAt, org.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return insertOwners(ctx, r.tx, org.ID, org.OwnerIDs)
}

func (r *organizationStore) GetByID(ctx context.Context, id string) (*auth.Organization, error) {
	org := &auth.Organization{ID: id}
	err := r.tx.QueryRowContext(ctx, `
		select name, created_at, updated_at from organizations where id=$1
	`, id).Scan(&org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	org.OwnerIDs, err = stringColumn(ctx, r.tx, `
		select user_id from organization_owners where organization_id=$1 order by user_id
	`, id)
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (r *organizationStore) List(ctx context.Context) ([]*auth.Organization, error) {
	rows, err := r.tx.QueryContext(ctx, `
		select id, name, created_at, updated_at from organizations order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Organization
	for rows.Next() {
		org := &auth.Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, org := range out {
		org.OwnerIDs, err = stringColumn(ctx, r.tx, `
			select user_id from organization_owners where organization_id=$1 order by user_id
		`, org.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *organizationStore) Update(ctx context.Context, org *auth.Organization) error {
	res, err := r.tx.ExecContext(ctx, `
		update organizations set name=$2, updated_at=$3 where id=$1
	`, org.ID, org.Name, org.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrOrganizationNotFound
	}
	if _, err := r.tx.ExecContext(ctx, `
		delete from organization_owners where organization_id=$1
	`, org.ID); err != nil {
		return err
	}
	return insertOwners(ctx, r.tx, org.ID, org.OwnerIDs)
}

func insertOwners(ctx context.Context, tx *sql.Tx, orgID string, ownerIDs []string) error {
	for _, uid := range ownerIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into organization_owners(organization_id, user_id) values ($1,$2)
		`, orgID, uid); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// --- users ---

type userStore struct {
	tx *sql.Tx
}

func (r *userStore) Add(ctx context.Context, u *auth.User) error {
	if _, err := r.tx.ExecContext(ctx, `
		insert into users(id, organization_id, name, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
	`, u.ID, u.OrganizationID, u.Name, u.CreatedAt, u.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return insertUserRoles(ctx, r.tx, u.ID, u.RoleIDs)
}

func (r *userStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	u := &auth.User{ID: id}
	err := r.tx.QueryRowContext(ctx, `
		select organization_id, name, created_at, updated_at from users where id=$1
	`, id).Scan(&u.OrganizationID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.RoleIDs, err = stringColumn(ctx, r.tx, `
		select role_id from user_roles where user_id=$1 order by role_id
	`, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userStore) OrganizationIDForUser(ctx context.Context, userID string) (string, error) {
	var orgID string
	err := r.tx.QueryRowContext(ctx, `
		select organization_id from users where id=$1
	`, userID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return orgID, nil
}

func (r *userStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.User, error) {
	rows, err := r.tx.QueryContext(ctx, `
		select id, organization_id, name, created_at, updated_at
		from users where organization_id=$1 order by id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u := &auth.User{}
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, u := range out {
		u.RoleIDs, err = stringColumn(ctx, r.tx, `
			select role_id from user_roles where user_id=$1 order by role_id
		`, u.ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *userStore) Update(ctx context.Context, u *auth.User) error {
	res, err := r.tx.ExecContext(ctx, `
		update users set name=$2, updated_at=$3 where id=$1
	`, u.ID, u.Name, u.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrUserNotFound
	}
	if _, err := r.tx.ExecContext(ctx, `
		delete from user_roles where user_id=$1
	`, u.ID); err != nil {
		return err
	}
	return insertUserRoles(ctx, r.tx, u.ID, u.RoleIDs)
}

func (r *userStore) Delete(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func insertUserRoles(ctx context.Context, tx *sql.Tx, userID string, roleIDs []string) error {
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles(user_id, role_id) values ($1,$2)
		`, userID, rid); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// --- roles ---

type roleStore struct {
	tx *sql.Tx
}

func (r *roleStore) Add(ctx context.Context, role *auth.Role) error {
	if _, err := r.tx.ExecContext(ctx, `
		insert into roles(id, organization_id, name, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
	`, role.ID, role.OrganizationID, role.Name, role.CreatedAt, role.UpdatedAt); err != nil {
		return mapErr(err)
	}
	return insertRoleScopes(ctx, r.tx, role.ID, role.ScopeIDs)
}

func (r *roleStore) GetByID(ctx context.Context, id string) (*auth.Role, error) {
	role := &auth.Role{ID: id}
	err := r.tx.QueryRowContext(ctx, `
		select organization_id, name, created_at, updated_at from roles where id=$1
	`, id).Scan(&role.OrganizationID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withScopes(ctx, role)
}

func (r *roleStore) GetByName(ctx context.Context, orgID, name string) (*auth.Role, error) {
	role := &auth.Role{OrganizationID: orgID, Name: name}
	err := r.tx.QueryRowContext(ctx, `
		select id, created_at, updated_at from roles where organization_id=$1 and name=$2
	`, orgID, name).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withScopes(ctx, role)
}

func (r *roleStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.Role, error) {
	return r.queryRoles(ctx, `
		select id, organization_id, name, created_at, updated_at
		from roles where organization_id=$1 order by id
	`, orgID)
}

func (r *roleStore) ForUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	return r.queryRoles(ctx, `
		select r.id, r.organization_id, r.name, r.created_at, r.updated_at
		from roles r join user_roles ur on ur.role_id = r.id
		where ur.user_id=$1 order by r.id
	`, userID)
}

func (r *roleStore) Update(ctx context.Context, role *auth.Role) error {
	res, err := r.tx.ExecContext(ctx, `
		update roles set name=$2, updated_at=$3 where id=$1
	`, role.ID, role.Name, role.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrRoleNotFound
	}
	if _, err := r.tx.ExecContext(ctx, `
		delete from role_scopes where role_id=$1
	`, role.ID); err != nil {
		return err
	}
	return insertRoleScopes(ctx, r.tx, role.ID, role.ScopeIDs)
}

func (r *roleStore) queryRoles(ctx context.Context, query string, arg any) ([]*auth.Role, error) {
	rows, err := r.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Role
	for rows.Next() {
		role := &auth.Role{}
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range out {
		if _, err := r.withScopes(ctx, role); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *roleStore) withScopes(ctx context.Context, role *auth.Role) (*auth.Role, error) {
	ids, err := stringColumn(ctx, r.tx, `
		select scope_id from role_scopes where role_id=$1 order by scope_id
	`, role.ID)
	if err != nil {
		return nil, err
	}
	role.ScopeIDs = ids
	return role, nil
}

func insertRoleScopes(ctx context.Context, tx *sql.Tx, roleID string, scopeIDs []string) error {
	for _, sid := range scopeIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_scopes(role_id, scope_id) values ($1,$2)
		`, roleID, sid); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// --- scopes ---

type scopeStore struct {
	tx *sql.Tx
}

func (r *scopeStore) Add(ctx context.Context, scope *auth.Scope) error {
	if _, err := r.tx.ExecContext(ctx, `
		insert into scopes(id, organization_id, name, created_at)
		values ($1,$2,$3,$4)
	`, scope.ID, scope.OrganizationID, scope.Name, scope.CreatedAt); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *scopeStore) GetByName(ctx context.Context, orgID, name string) (*auth.Scope, error) {
	scope := &auth.Scope{OrganizationID: orgID, Name: name}
	err := r.tx.QueryRowContext(ctx, `
		select id, created_at from scopes where organization_id=$1 and name=$2
	`, orgID, name).Scan(&scope.ID, &scope.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return scope, nil
}

func (r *scopeStore) GetByNames(ctx context.Context, orgID string, names []string) ([]*auth.Scope, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := []any{orgID}
	placeholders := make([]string, 0, len(names))
	for _, n := range names {
		args = append(args, n)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	return r.queryScopes(ctx, fmt.Sprintf(`
		select id, organization_id, name, created_at from scopes
		where organization_id=$1 and name in (%s) order by id
	`, strings.Join(placeholders, ",")), args...)
}

func (r *scopeStore) GetByIDs(ctx context.Context, scopeIDs []string) ([]*auth.Scope, error) {
	if len(scopeIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(scopeIDs))
	placeholders := make([]string, 0, len(scopeIDs))
	for _, id := range scopeIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	return r.queryScopes(ctx, fmt.Sprintf(`
		select id, organization_id, name, created_at from scopes
		where id in (%s) order by id
	`, strings.Join(placeholders, ",")), args...)
}

func (r *scopeStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.Scope, error) {
	return r.queryScopes(ctx, `
		select id, organization_id, name, created_at from scopes
		where organization_id=$1 order by id
	`, orgID)
}

func (r *scopeStore) queryScopes(ctx context.Context, query string, args ...any) ([]*auth.Scope, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.Scope
	for rows.Next() {
		scope := &auth.Scope{}
		if err := rows.Scan(&scope.ID, &scope.OrganizationID, &scope.Name, &scope.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, scope)
	}
	return out, rows.Err()
}

// --- sessions ---

type sessionStore struct {
	tx *sql.Tx
}

const sessionColumns = `
	id, user_id, token, jwt_id, created_on, expires_on, revoked_on,
	coalesce(replaced_by_token_id,''), ip_address, user_agent`

func (r *sessionStore) Add(ctx context.Context, tok *auth.RefreshToken) error {
	if _, err := r.tx.ExecContext(ctx, `
		insert into refresh_tokens(
			id, user_id, token, jwt_id, created_on, expires_on,
			replaced_by_token_id, ip_address, user_agent)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,$9)
	`, tok.ID, tok.UserID, tok.Token, tok.JwtID, tok.CreatedOn, tok.ExpiresOn,
		tok.ReplacedByTokenID, tok.IPAddress, tok.UserAgent); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *sessionStore) GetByID(ctx context.Context, id string) (*auth.RefreshToken, error) {
	return r.queryOne(ctx, `
		select `+sessionColumns+` from refresh_tokens where id=$1
	`, id)
}

func (r *sessionStore) GetByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	return r.queryOne(ctx, `
		select `+sessionColumns+` from refresh_tokens where token=$1
	`, value)
}

func (r *sessionStore) AllForUser(ctx context.Context, userID string) ([]*auth.RefreshToken, error) {
	rows, err := r.tx.QueryContext(ctx, `
		select `+sessionColumns+` from refresh_tokens where user_id=$1 order by id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.RefreshToken
	for rows.Next() {
		tok, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (r *sessionStore) MarkRotated(ctx context.Context, id string, revokedOn time.Time, replacedByID string) error {
	res, err := r.tx.ExecContext(ctx, `
		update refresh_tokens set revoked_on=$2, replaced_by_token_id=$3
		where id=$1 and revoked_on is null
	`, id, revokedOn, replacedByID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Zero rows: either the record is gone or a concurrent rotation won.
	var dummy int
	err = r.tx.QueryRowContext(ctx, `select 1 from refresh_tokens where id=$1`, id).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrRefreshTokenNotFound
	}
	if err != nil {
		return err
	}
	return auth.ErrRefreshTokenRevoked
}

func (r *sessionStore) MarkRevoked(ctx context.Context, id string, revokedOn time.Time) error {
	res, err := r.tx.ExecContext(ctx, `
		update refresh_tokens set revoked_on=$2 where id=$1
	`, id, revokedOn)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrRefreshTokenNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sessionStore) queryOne(ctx context.Context, query string, arg any) (*auth.RefreshToken, error) {
	tok, err := scanSession(r.tx.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func scanSession(row rowScanner) (*auth.RefreshToken, error) {
	tok := &auth.RefreshToken{}
	var revoked sql.NullTime
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.Token, &tok.JwtID, &tok.CreatedOn,
		&tok.ExpiresOn, &revoked, &tok.ReplacedByTokenID, &tok.IPAddress, &tok.UserAgent); err != nil {
		return nil, err
	}
	if revoked.Valid {
		ts := revoked.Time
		tok.RevokedOn = &ts
	}
	return tok, nil
}

// --- helpers ---

func stringColumn(ctx context.Context, tx *sql.Tx, query string, arg any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return auth.ErrConflict
	}
	return err
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/credvault/internal/domain"
)

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a PostgresStore over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectColumns = `
	id, tenant_id, protocol, issuer, subject, scope, amount_limit, currency,
	expires_at, status, raw_payload, verification_status, verification_reason,
	verification_detail, verified_at, retention_days, soft_delete_at,
	created_by, revoked_at, revoked_reason, created_at, updated_at`

func (s *PostgresStore) GetByID(ctx context.Context, tenantID string, id uuid.UUID, includeSoftDeleted bool) (domain.Authorization, error) {
	q := fmt.Sprintf(`SELECT %s FROM authorizations WHERE tenant_id = $1 AND id = $2`, selectColumns)
	if !includeSoftDeleted {
		q += ` AND soft_delete_at IS NULL`
	}

	row := s.pool.QueryRow(ctx, q, tenantID, id)
	auth, err := scanAuthorization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Authorization{}, ErrNotFound
	}
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("store: get by id: %w", err)
	}
	return auth, nil
}

const insertAuthorizationSQL = `
INSERT INTO authorizations (
	id, tenant_id, protocol, issuer, subject, scope, amount_limit, currency,
	expires_at, status, raw_payload, verification_status, verification_reason,
	verification_detail, verified_at, retention_days, created_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

func (s *PostgresStore) Create(ctx context.Context, auth domain.Authorization) error {
	scope, err := json.Marshal(auth.Scope)
	if err != nil {
		return fmt.Errorf("store: marshaling scope: %w", err)
	}
	detail, err := json.Marshal(auth.VerificationDetail)
	if err != nil {
		return fmt.Errorf("store: marshaling verification detail: %w", err)
	}

	var amountLimit *int64
	if auth.AmountLimit != nil {
		v := int64(*auth.AmountLimit)
		amountLimit = &v
	}

	_, err = s.pool.Exec(ctx, insertAuthorizationSQL,
		auth.ID, auth.TenantID, string(auth.Protocol), auth.Issuer, auth.Subject,
		scope, amountLimit, auth.Currency, auth.ExpiresAt, string(auth.Status),
		auth.RawPayload, string(auth.VerificationStatus), auth.VerificationReason,
		detail, auth.VerifiedAt, auth.RetentionDays, auth.CreatedBy,
		auth.CreatedAt, auth.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("store: inserting authorization: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, tenantID string, id uuid.UUID, patch FieldPatch) (domain.Authorization, error) {
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		sets = append(sets, "status = "+arg(string(*patch.Status)))
	}
	if patch.VerificationStatus != nil {
		sets = append(sets, "verification_status = "+arg(string(*patch.VerificationStatus)))
	}
	if patch.VerificationReason != nil {
		sets = append(sets, "verification_reason = "+arg(*patch.VerificationReason))
	}
	if patch.VerificationDetail != nil {
		detail, err := json.Marshal(patch.VerificationDetail)
		if err != nil {
			return domain.Authorization{}, fmt.Errorf("store: marshaling verification detail: %w", err)
		}
		sets = append(sets, "verification_detail = "+arg(detail))
	}
	if patch.VerifiedAt != nil {
		sets = append(sets, "verified_at = "+arg(*patch.VerifiedAt))
	}
	if patch.RevokedAt != nil {
		sets = append(sets, "revoked_at = "+arg(*patch.RevokedAt))
	}
	if patch.RevokedReason != nil {
		sets = append(sets, "revoked_reason = "+arg(*patch.RevokedReason))
	}
	if patch.SoftDeleteAt != nil {
		sets = append(sets, "soft_delete_at = "+arg(*patch.SoftDeleteAt))
	}
	sets = append(sets, "updated_at = "+arg(time.Now().UTC()))

	q := fmt.Sprintf(`UPDATE authorizations SET %s WHERE tenant_id = %s AND id = %s RETURNING %s`,
		strings.Join(sets, ", "), arg(tenantID), arg(id), selectColumns)

	row := s.pool.QueryRow(ctx, q, args...)
	auth, err := scanAuthorization(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Authorization{}, ErrNotFound
	}
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("store: updating authorization: %w", err)
	}
	return auth, nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE authorizations SET soft_delete_at = $1, updated_at = $1 WHERE tenant_id = $2 AND id = $3`,
		at.UTC(), tenantID, id)
	if err != nil {
		return fmt.Errorf("store: soft deleting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Restore(ctx context.Context, tenantID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE authorizations SET soft_delete_at = NULL, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2 AND soft_delete_at IS NOT NULL AND status <> $3`,
		tenantID, id, string(domain.StatusRevoked))
	if err != nil {
		return fmt.Errorf("store: restoring: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotSoftDeleted
	}
	return nil
}

func (s *PostgresStore) Purge(ctx context.Context, tenantID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM authorizations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("store: purging: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPurgeable(ctx context.Context, cutoff time.Time) ([]domain.Authorization, error) {
	q := fmt.Sprintf(`SELECT %s FROM authorizations
		WHERE soft_delete_at IS NOT NULL
		AND soft_delete_at + (retention_days || ' days')::interval < $1`, selectColumns)

	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: listing purgeable: %w", err)
	}
	defer rows.Close()

	var out []domain.Authorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning purgeable row: %w", err)
		}
		out = append(out, auth)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Search(ctx context.Context, filter Filter) (Page, error) {
	if filter.Limit > MaxSearchLimit {
		return Page{}, ErrLimitExceeded
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IsAdmin {
		where = append(where, "tenant_id = "+arg(filter.TenantID))
	}
	if !filter.IncludeDeleted {
		where = append(where, "soft_delete_at IS NULL")
	}
	if filter.Protocol != nil {
		where = append(where, "protocol = "+arg(string(*filter.Protocol)))
	}
	if filter.Issuer != nil {
		where = append(where, "issuer = "+arg(*filter.Issuer))
	}
	if filter.Subject != nil {
		where = append(where, "subject = "+arg(*filter.Subject))
	}
	if filter.Status != nil {
		where = append(where, "status = "+arg(string(*filter.Status)))
	}
	if filter.ExpiresBefore != nil {
		where = append(where, "expires_at < "+arg(*filter.ExpiresBefore))
	}
	if filter.ExpiresAfter != nil {
		where = append(where, "expires_at > "+arg(*filter.ExpiresAfter))
	}
	if filter.CreatedAfter != nil {
		where = append(where, "created_at > "+arg(*filter.CreatedAfter))
	}
	if filter.MinAmount != nil {
		where = append(where, "amount_limit >= "+arg(int64(*filter.MinAmount)))
	}
	if filter.MaxAmount != nil {
		where = append(where, "amount_limit <= "+arg(int64(*filter.MaxAmount)))
	}
	if filter.Currency != nil {
		where = append(where, "currency = "+arg(strings.ToUpper(*filter.Currency)))
	}
	if filter.ScopeMerchant != nil {
		where = append(where, "(scope->>'merchant' = "+arg(*filter.ScopeMerchant)+" OR scope->'constraints'->>'merchant' = "+arg(*filter.ScopeMerchant)+")")
	}
	if filter.ScopeCategory != nil {
		where = append(where, "(scope->>'category' = "+arg(*filter.ScopeCategory)+" OR scope->'constraints'->>'category' = "+arg(*filter.ScopeCategory)+")")
	}
	if filter.ScopeItem != nil {
		where = append(where, "(scope->>'item' = "+arg(*filter.ScopeItem)+" OR scope->'constraints'->>'item' = "+arg(*filter.ScopeItem)+")")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	sortCol := "created_at"
	switch filter.SortBy {
	case SortExpiresAt:
		sortCol = "expires_at"
	case SortUpdatedAt:
		sortCol = "updated_at"
	}
	sortDir := "ASC"
	if filter.SortDir == SortDesc {
		sortDir = "DESC"
	}

	countQ := fmt.Sprintf(`SELECT count(*) FROM authorizations %s`, whereClause)
	var total int
	if err := s.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("store: counting search results: %w", err)
	}

	limitArg := arg(limit)
	offsetArg := arg(filter.Offset)
	q := fmt.Sprintf(`SELECT %s FROM authorizations %s ORDER BY %s %s LIMIT %s OFFSET %s`,
		selectColumns, whereClause, sortCol, sortDir, limitArg, offsetArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return Page{}, fmt.Errorf("store: searching: %w", err)
	}
	defer rows.Close()

	var items []domain.Authorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return Page{}, fmt.Errorf("store: scanning search row: %w", err)
		}
		items = append(items, auth)
	}
	return Page{Items: items, TotalCount: total}, rows.Err()
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuthorization(row rowScanner) (domain.Authorization, error) {
	var (
		a                   domain.Authorization
		protocol, status    string
		verificationStatus  string
		scope, detail       []byte
		amountLimit         *int64
	)

	err := row.Scan(
		&a.ID, &a.TenantID, &protocol, &a.Issuer, &a.Subject, &scope, &amountLimit,
		&a.Currency, &a.ExpiresAt, &status, &a.RawPayload, &verificationStatus,
		&a.VerificationReason, &detail, &a.VerifiedAt, &a.RetentionDays,
		&a.SoftDeleteAt, &a.CreatedBy, &a.RevokedAt, &a.RevokedReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Authorization{}, err
	}

	a.Protocol = domain.Protocol(protocol)
	a.Status = domain.Status(status)
	a.VerificationStatus = domain.VerificationStatus(verificationStatus)

	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &a.Scope); err != nil {
			return domain.Authorization{}, fmt.Errorf("unmarshaling scope: %w", err)
		}
	}
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &a.VerificationDetail); err != nil {
			return domain.Authorization{}, fmt.Errorf("unmarshaling verification detail: %w", err)
		}
	}
	if amountLimit != nil {
		m := domain.Money(*amountLimit)
		a.AmountLimit = &m
	}

	return a, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

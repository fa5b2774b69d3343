package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "agroadvisor/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context, filter ListFilter) ([]Rule, error)
	// GetActive returns rules with status ACTIVE and is_active true,
	// ordered by priority descending then creation time ascending.
	GetActive(ctx context.Context) ([]Rule, error)
	ListVersions(ctx context.Context, groupID string) ([]Rule, error)
	// ArchiveAndInsert atomically archives the old version and inserts
	// its successor. The old row is never mutated beyond status,
	// is_active and updated_at.
	ArchiveAndInsert(ctx context.Context, oldID string, next *Rule) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const ruleColumns = "id, group_id, name, definition, status, is_active, version, priority, effective_from, effective_to, created_by, created_at, updated_at"

func (r *PostgresRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.GroupID == "" {
		// The first version is its own group.
		rule.GroupID = rule.ID
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	definition, err := json.Marshal(rule.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	query := `
		INSERT INTO advisory_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.GroupID, rule.Name, definition, rule.Status, rule.IsActive,
		rule.Version, rule.Priority, rule.EffectiveFrom, rule.EffectiveTo,
		rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule version %d already exists for group %s", rule.Version, rule.GroupID))
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrConflict.WithCause(err)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM advisory_rules WHERE id = $1`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM advisory_rules`
	var clauses []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.GroupID != "" {
		args = append(args, filter.GroupID)
		clauses = append(clauses, fmt.Sprintf("group_id = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY priority DESC, created_at ASC"

	return r.queryRules(ctx, query, args...)
}

func (r *PostgresRepository) GetActive(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM advisory_rules
		WHERE status = 'ACTIVE' AND is_active = true
		ORDER BY priority DESC, created_at ASC
	`
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) ListVersions(ctx context.Context, groupID string) ([]Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM advisory_rules
		WHERE group_id = $1
		ORDER BY version DESC
	`
	return r.queryRules(ctx, query, groupID)
}

func (r *PostgresRepository) ArchiveAndInsert(ctx context.Context, oldID string, next *Rule) error {
	definition, err := json.Marshal(next.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE advisory_rules
		SET status = 'ARCHIVED', is_active = false, updated_at = $2
		WHERE id = $1
	`, oldID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive rule %s: %w", oldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrNotFound.WithDetail("id", oldID)
	}

	now := time.Now()
	next.CreatedAt = now
	next.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO advisory_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		next.ID, next.GroupID, next.Name, definition, next.Status, next.IsActive,
		next.Version, next.Priority, next.EffectiveFrom, next.EffectiveTo,
		next.CreatedBy, next.CreatedAt, next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule version %d: %w", next.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var definition []byte

	err := row.Scan(
		&rule.ID, &rule.GroupID, &rule.Name, &definition, &rule.Status, &rule.IsActive,
		&rule.Version, &rule.Priority, &rule.EffectiveFrom, &rule.EffectiveTo,
		&rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(definition) > 0 {
		if err := json.Unmarshal(definition, &rule.Definition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal definition for rule %s: %w", rule.ID, err)
		}
	}

	return &rule, nil
}

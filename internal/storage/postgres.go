// Package storage persists jobs and agents.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
	"github.com/cuongbtq/agenthire/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

const jobColumns = `
	id, status, price_cents, requester_wallet, agent_id, skill_id, service_key,
	input, payment_tx_ref, output, dispute_reason, refund_cents, error_message, rating,
	created_at, updated_at, paid_at, accepted_at, delivered_at, completed_at,
	disputed_at, resolved_at, refunded_at, failed_at`

const agentColumns = `
	id, owner_wallet, payout_address, name, webhook_url,
	total_jobs, total_earned_cents, average_rating, rating_count, completion_rate,
	avg_response_ms, response_samples, refunded_jobs, failed_jobs,
	identity_verified, webhook_verified, security_audited,
	trust_tier, trust_score, created_at, updated_at`

// jobRow carries the JSONB columns as raw bytes so NULL scans cleanly.
type jobRow struct {
	domain.Job
	InputJSON  []byte `db:"input"`
	OutputJSON []byte `db:"output"`
}

func (r *jobRow) toDomain() *domain.Job {
	job := r.Job
	job.Input = r.InputJSON
	job.Output = r.OutputJSON
	return &job
}

// Postgres stores jobs and agents in PostgreSQL.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a store over an open connection pool.
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema ensured")
	return nil
}

func (s *Postgres) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || postgresql.IsInvalidTextRepresentation(err) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Postgres) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, status, price_cents, requester_wallet, agent_id,
			skill_id, service_key, input, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8::jsonb, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Status,
		job.Price,
		job.RequesterWallet,
		job.AgentID,
		job.SkillID,
		job.ServiceKey,
		jsonArg(job.Input),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		switch {
		case postgresql.IsUniqueViolation(err):
			return domain.NewError(domain.KindConflict, "job %s already exists", job.ID)
		case postgresql.IsForeignKeyViolation(err), postgresql.IsInvalidTextRepresentation(err):
			return domain.ErrAgentNotFound
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter domain.JobFilter) (domain.JobPage, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.RequesterWallet != "" {
		query += fmt.Sprintf(" AND requester_wallet = $%d", argIdx)
		args = append(args, filter.RequesterWallet)
		argIdx++
	}

	if filter.AgentID != "" {
		query += fmt.Sprintf(" AND agent_id::text = $%d", argIdx)
		args = append(args, filter.AgentID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id::text) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// id::text keeps the tie-break order identical to the in-memory store
	query += " ORDER BY created_at DESC, id::text DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return domain.JobPage{}, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *rows[i].toDomain())
	}
	return pageOf(jobs, filter.PageSize), nil
}

// UpdateJobStatus is a compare-and-set on status. The stats delta, if any, is
// applied to the agent row in the same transaction, so only the caller whose
// UPDATE matched credits the agent.
func (s *Postgres) UpdateJobStatus(ctx context.Context, id string, expected domain.Status, update domain.JobUpdate) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $3,
			payment_tx_ref = COALESCE($4, payment_tx_ref),
			output = COALESCE($5::jsonb, output),
			dispute_reason = COALESCE($6, dispute_reason),
			refund_cents = COALESCE($7, refund_cents),
			error_message = COALESCE($8, error_message),
			rating = COALESCE($9, rating),
			paid_at = COALESCE($10, paid_at),
			accepted_at = COALESCE($11, accepted_at),
			delivered_at = COALESCE($12, delivered_at),
			completed_at = COALESCE($13, completed_at),
			disputed_at = COALESCE($14, disputed_at),
			resolved_at = COALESCE($15, resolved_at),
			refunded_at = COALESCE($16, refunded_at),
			failed_at = COALESCE($17, failed_at),
			updated_at = $18
		WHERE id = $1
		  AND status = $2
		RETURNING ` + jobColumns

	var row jobRow
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, query,
			id,
			expected,
			update.Status,
			update.PaymentTxRef,
			jsonArg(update.Output),
			update.DisputeReason,
			update.RefundAmount,
			update.ErrorMessage,
			update.Rating,
			update.PaidAt,
			update.AcceptedAt,
			update.DeliveredAt,
			update.CompletedAt,
			update.DisputedAt,
			update.ResolvedAt,
			update.RefundedAt,
			update.FailedAt,
			time.Now().UTC(),
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return s.mismatch(ctx, tx, id, expected)
			}
			if postgresql.IsUniqueViolation(err) {
				return domain.NewError(domain.KindConflict, "payment reference already used by another job")
			}
			return fmt.Errorf("failed to update job status: %w", err)
		}

		if update.Stats != nil {
			if _, err := s.applyStats(ctx, tx, row.AgentID, *update.Stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Job status updated",
		slog.String("job_id", id),
		slog.String("from", string(expected)),
		slog.String("to", string(update.Status)),
	)
	return row.toDomain(), nil
}

func (s *Postgres) mismatch(ctx context.Context, tx *sqlx.Tx, id string, expected domain.Status) error {
	var current domain.Status
	err := tx.GetContext(ctx, &current, `SELECT status FROM jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || postgresql.IsInvalidTextRepresentation(err) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to read job status: %w", err)
	}

	s.logger.Warn("Job status changed concurrently",
		slog.String("job_id", id),
		slog.String("expected", string(expected)),
		slog.String("current", string(current)),
	)
	return &domain.StatusMismatchError{JobID: id, Expected: expected, Current: current}
}

func (s *Postgres) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	var agent domain.Agent
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`

	if err := s.db.GetContext(ctx, &agent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || postgresql.IsInvalidTextRepresentation(err) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

func (s *Postgres) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (
			id, owner_wallet, payout_address, name, webhook_url,
			identity_verified, webhook_verified, security_audited,
			trust_tier, trust_score, created_at, updated_at
		) VALUES (
			:id, :owner_wallet, :payout_address, :name, :webhook_url,
			:identity_verified, :webhook_verified, :security_audited,
			:trust_tier, :trust_score, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, agent); err != nil {
		if postgresql.IsUniqueViolation(err) {
			return domain.NewError(domain.KindConflict, "agent %s already exists", agent.ID)
		}
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateAgentStats(ctx context.Context, id string, delta domain.StatsDelta) (*domain.Agent, error) {
	var agent *domain.Agent
	err := postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		agent, err = s.applyStats(ctx, tx, id, delta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// applyStats locks the agent row and folds delta into it.
func (s *Postgres) applyStats(ctx context.Context, tx *sqlx.Tx, id string, delta domain.StatsDelta) (*domain.Agent, error) {
	var agent domain.Agent
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &agent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to lock agent: %w", err)
	}

	delta.Apply(&agent)
	agent.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE agents
		SET total_jobs = :total_jobs,
			total_earned_cents = :total_earned_cents,
			average_rating = :average_rating,
			rating_count = :rating_count,
			completion_rate = :completion_rate,
			avg_response_ms = :avg_response_ms,
			response_samples = :response_samples,
			refunded_jobs = :refunded_jobs,
			failed_jobs = :failed_jobs,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, update, &agent); err != nil {
		return nil, fmt.Errorf("failed to update agent stats: %w", err)
	}
	return &agent, nil
}

func (s *Postgres) SaveTrust(ctx context.Context, id string, tier string, score float64) error {
	query := `
		UPDATE agents
		SET trust_tier = $2,
			trust_score = $3,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, tier, score)
	if err != nil {
		return fmt.Errorf("failed to save trust tier: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// jsonArg passes JSON as text so lib/pq does not send it as bytea.
func jsonArg(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

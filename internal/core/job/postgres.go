package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adarshvs/Recon-MCP/internal/core/util"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore persists jobs and steps in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, query, target, target_type, status, summary, created_at, started_at, finished_at`

const stepColumns = `id, job_id, step_order, name, command, outfile, status, exit_code, reason, stdout_path, started_at, finished_at`

func (p *PostgresStore) Create(ctx context.Context, j Job, steps []Step) error {
	if err := Validate(j, steps); err != nil {
		return err
	}
	id := util.TextToUUID(j.ID)
	if !id.Valid {
		return fmt.Errorf("%w: id %q is not a uuid", ErrInvalidJob, j.ID)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO jobs (id, query, target, target_type, status, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		id, j.Query, j.Target, string(j.TargetType), string(j.Status), j.Summary, nullTime(j.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range steps {
		batch.Queue(`
			INSERT INTO steps (job_id, step_order, name, command, outfile, status)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, s.Order, s.Name, s.Command, s.Outfile, string(s.Status))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert steps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Detail, error) {
	uid := util.TextToUUID(id)
	if !uid.Valid {
		return nil, ErrNotFound
	}

	row := p.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, uid)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rows, err := p.db.Query(ctx, `SELECT `+stepColumns+` FROM steps WHERE job_id = $1 ORDER BY step_order`, uid)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	d := &Detail{Job: j, Steps: []Step{}}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		d.Steps = append(d.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	return d, nil
}

func (p *PostgresStore) List(ctx context.Context, limit, offset int) ([]Job, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (p *PostgresStore) Claim(ctx context.Context, id string) (bool, error) {
	uid := util.TextToUUID(id)
	if !uid.Valid {
		return false, ErrNotFound
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE jobs SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		uid, string(StatusRunning), string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := p.exists(ctx, uid); err != nil {
		return false, err
	}
	return false, nil
}

func (p *PostgresStore) SaveStep(ctx context.Context, step Step, fields ...StepField) error {
	uid := util.TextToUUID(step.JobID)
	if !uid.Valid {
		return ErrNotFound
	}
	if len(fields) == 0 {
		return nil
	}

	args := []any{uid, step.Order}
	sets := make([]string, 0, len(fields)+1)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	for _, f := range fields {
		switch f {
		case FieldStatus:
			set("status", string(step.Status))
		case FieldExitCode:
			set("exit_code", step.ExitCode)
		case FieldReason:
			set("reason", step.Reason)
		case FieldStdoutPath:
			set("stdout_path", step.StdoutPath)
		case FieldStartedAt:
			set("started_at", step.StartedAt)
		case FieldFinishedAt:
			set("finished_at", step.FinishedAt)
		default:
			return fmt.Errorf("unknown step field %q", f)
		}
	}
	sets = append(sets, "updated_at = NOW()")

	where := "job_id = $1 AND step_order = $2"
	guarded := hasField(fields, FieldStatus)
	if guarded {
		args = append(args, step.Status.predecessors())
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	tag, err := p.db.Exec(ctx, "UPDATE steps SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return fmt.Errorf("save step %d: %w", step.Order, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM steps WHERE job_id = $1 AND step_order = $2)`,
		uid, step.Order).Scan(&exists); err != nil {
		return fmt.Errorf("check step %d: %w", step.Order, err)
	}
	if !exists {
		return fmt.Errorf("step %d: %w", step.Order, ErrNotFound)
	}
	return fmt.Errorf("step %d -> %s: %w", step.Order, step.Status, ErrInvalidTransition)
}

func (p *PostgresStore) Finish(ctx context.Context, id string, status Status) error {
	if !StatusRunning.CanTransition(status) {
		return fmt.Errorf("job %s -> %s: %w", id, status, ErrInvalidTransition)
	}
	uid := util.TextToUUID(id)
	if !uid.Valid {
		return ErrNotFound
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE jobs SET status = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		uid, string(status), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := p.exists(ctx, uid); err != nil {
		return err
	}
	return fmt.Errorf("job %s -> %s: %w", id, status, ErrInvalidTransition)
}

func (p *PostgresStore) SetSummary(ctx context.Context, id, summary string) error {
	uid := util.TextToUUID(id)
	if !uid.Valid {
		return ErrNotFound
	}
	tag, err := p.db.Exec(ctx, `UPDATE jobs SET summary = $2, updated_at = NOW() WHERE id = $1`, uid, summary)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) FailStale(ctx context.Context) (int64, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	steps, err := tx.Exec(ctx, `
		UPDATE steps SET status = $1, reason = $2, finished_at = NOW(), updated_at = NOW()
		WHERE status = $3 AND job_id IN (SELECT id FROM jobs WHERE status = $4)`,
		string(StepFail), StaleReason, string(StepRunning), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("fail stale steps: %w", err)
	}
	jobs, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $1, finished_at = NOW(), updated_at = NOW()
		WHERE status = $2`,
		string(StatusFail), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	log.Debug().Int64("jobs", jobs.RowsAffected()).Int64("steps", steps.RowsAffected()).Msg("failed stale jobs")
	return jobs.RowsAffected(), nil
}

func (p *PostgresStore) exists(ctx context.Context, uid pgtype.UUID) error {
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, uid).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j          Job
		id         pgtype.UUID
		targetType string
		status     string
	)
	err := row.Scan(&id, &j.Query, &j.Target, &targetType, &status, &j.Summary,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return Job{}, err
	}
	j.ID = util.UUIDToStr(id)
	j.TargetType = ParseTargetType(targetType)
	j.Status = Status(status)
	return j, nil
}

func scanStep(row pgx.Row) (Step, error) {
	var (
		s      Step
		jobID  pgtype.UUID
		status string
	)
	err := row.Scan(&s.ID, &jobID, &s.Order, &s.Name, &s.Command, &s.Outfile, &status,
		&s.ExitCode, &s.Reason, &s.StdoutPath, &s.StartedAt, &s.FinishedAt)
	if err != nil {
		return Step{}, err
	}
	s.JobID = util.UUIDToStr(jobID)
	s.Status = StepStatus(status)
	return s, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

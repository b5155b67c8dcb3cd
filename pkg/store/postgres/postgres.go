// Package postgres implements store.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nbulygin/teamgate/pkg/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// conflicts.
const uniqueViolation = "23505"

// Storage implements store.Store.
type Storage struct {
	db *sql.DB
}

// New creates a Storage over an existing database handle.
func New(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Config holds database connection configuration.
type Config struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
}

// Open connects to PostgreSQL, configures the pool and verifies
// connectivity.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetUserByTelegramID retrieves a user by the durable Telegram id.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramUserID int64) (*store.User, error) {
	query := `SELECT telegram_user_id, username, role FROM users WHERE telegram_user_id = $1`

	var user store.User
	err := s.db.QueryRowContext(ctx, query, telegramUserID).Scan(
		&user.TelegramUserID,
		&user.Username,
		&user.Role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by the mutable username alias.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT telegram_user_id, username, role FROM users WHERE username = $1`

	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.TelegramUserID,
		&user.Username,
		&user.Role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user. Returns store.ErrDuplicate when the
// telegram id or username is already taken.
func (s *Storage) CreateUser(ctx context.Context, user *store.User) error {
	if user.Role == "" {
		user.Role = store.RoleNone
	}

	query := `INSERT INTO users (telegram_user_id, username, role) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, query, user.TelegramUserID, user.Username, user.Role)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser applies a partial update keyed by username and returns the
// updated row, or (nil, nil) when the user does not exist.
func (s *Storage) UpdateUser(ctx context.Context, username string, fields store.UserUpdate) (*store.User, error) {
	if fields.Role == nil {
		return s.GetUserByUsername(ctx, username)
	}

	query := `
		UPDATE users SET role = $1 WHERE username = $2
		RETURNING telegram_user_id, username, role
	`

	var user store.User
	err := s.db.QueryRowContext(ctx, query, *fields.Role, username).Scan(
		&user.TelegramUserID,
		&user.Username,
		&user.Role,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// DeleteUser removes a user and its manager/stage assignments in one
// transaction. The schema carries no ON DELETE CASCADE for the join
// tables, so they are cleared explicitly first.
func (s *Storage) DeleteUser(ctx context.Context, username string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var telegramUserID int64
	err = tx.QueryRowContext(ctx,
		`SELECT telegram_user_id FROM users WHERE username = $1`, username,
	).Scan(&telegramUserID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}

	for _, query := range []string{
		`DELETE FROM project_managers WHERE telegram_user_id = $1`,
		`DELETE FROM stage_users WHERE telegram_user_id = $1`,
		`DELETE FROM users WHERE telegram_user_id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, telegramUserID); err != nil {
			return false, fmt.Errorf("failed to delete user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return true, nil
}

// CreateProject inserts a project and returns it with the generated id.
func (s *Storage) CreateProject(ctx context.Context, name string) (*store.Project, error) {
	query := `INSERT INTO projects (name) VALUES ($1) RETURNING id, name`

	var project store.Project
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&project.ID, &project.Name); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return &project, nil
}

// GetProjectByID retrieves a project, (nil, nil) when absent.
func (s *Storage) GetProjectByID(ctx context.Context, id int) (*store.Project, error) {
	query := `SELECT id, name FROM projects WHERE id = $1`

	var project store.Project
	err := s.db.QueryRowContext(ctx, query, id).Scan(&project.ID, &project.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListProjects returns a page of all projects plus the total count.
func (s *Storage) ListProjects(ctx context.Context, offset, limit int) ([]store.Project, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := `SELECT id, name FROM projects ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// ListProjectsByManager returns the page of projects the given user manages
// plus the total count of such projects.
func (s *Storage) ListProjectsByManager(ctx context.Context, telegramUserID int64, offset, limit int) ([]store.Project, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_managers WHERE telegram_user_id = $1`,
		telegramUserID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count managed projects: %w", err)
	}

	query := `
		SELECT p.id, p.name
		FROM projects p
		JOIN project_managers pm ON pm.project_id = p.id
		WHERE pm.telegram_user_id = $1
		ORDER BY p.id
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, telegramUserID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list managed projects: %w", err)
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

func scanProjects(rows *sql.Rows) ([]store.Project, error) {
	var projects []store.Project
	for rows.Next() {
		var project store.Project
		if err := rows.Scan(&project.ID, &project.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject applies a partial update, (nil, nil) when the project does
// not exist.
func (s *Storage) UpdateProject(ctx context.Context, id int, fields store.ProjectUpdate) (*store.Project, error) {
	if fields.Name == nil {
		return s.GetProjectByID(ctx, id)
	}

	query := `UPDATE projects SET name = $1 WHERE id = $2 RETURNING id, name`

	var project store.Project
	err := s.db.QueryRowContext(ctx, query, *fields.Name, id).Scan(&project.ID, &project.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return &project, nil
}

// DeleteProject removes a project and its manager assignments. Stages are
// left in place intentionally, matching the observed schema behavior.
func (s *Storage) DeleteProject(ctx context.Context, id int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_managers WHERE project_id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete project managers: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit project deletion: %w", err)
	}
	return affected > 0, nil
}

// CreateStage inserts a stage under a project.
func (s *Storage) CreateStage(ctx context.Context, projectID int, name string) (*store.Stage, error) {
	query := `
		INSERT INTO stages (name, project_id) VALUES ($1, $2)
		RETURNING id, name, project_id
	`

	var stage store.Stage
	err := s.db.QueryRowContext(ctx, query, name, projectID).Scan(
		&stage.ID,
		&stage.Name,
		&stage.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	return &stage, nil
}

// GetStageByID retrieves a stage, (nil, nil) when absent.
func (s *Storage) GetStageByID(ctx context.Context, id int) (*store.Stage, error) {
	query := `SELECT id, name, project_id FROM stages WHERE id = $1`

	var stage store.Stage
	err := s.db.QueryRowContext(ctx, query, id).Scan(&stage.ID, &stage.Name, &stage.ProjectID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return &stage, nil
}

// ListStagesByProject returns all stages of a project ordered by id.
func (s *Storage) ListStagesByProject(ctx context.Context, projectID int) ([]store.Stage, error) {
	query := `SELECT id, name, project_id FROM stages WHERE project_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []store.Stage
	for rows.Next() {
		var stage store.Stage
		if err := rows.Scan(&stage.ID, &stage.Name, &stage.ProjectID); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// UpdateStage applies a partial update, (nil, nil) when the stage does not
// exist.
func (s *Storage) UpdateStage(ctx context.Context, id int, fields store.StageUpdate) (*store.Stage, error) {
	set := ""
	args := []interface{}{}
	if fields.Name != nil {
		args = append(args, *fields.Name)
		set = fmt.Sprintf("name = $%d", len(args))
	}
	if fields.ProjectID != nil {
		args = append(args, *fields.ProjectID)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("project_id = $%d", len(args))
	}
	if set == "" {
		return s.GetStageByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE stages SET %s WHERE id = $%d RETURNING id, name, project_id`,
		set, len(args),
	)

	var stage store.Stage
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&stage.ID, &stage.Name, &stage.ProjectID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update stage: %w", err)
	}
	return &stage, nil
}

// DeleteStage removes a stage and its user assignments.
func (s *Storage) DeleteStage(ctx context.Context, id int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_users WHERE stage_id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete stage users: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit stage deletion: %w", err)
	}
	return affected > 0, nil
}

// AssignManager adds a manager assignment. A duplicate pair is a benign
// no-op reported as false.
func (s *Storage) AssignManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error) {
	query := `INSERT INTO project_managers (project_id, telegram_user_id) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, projectID, telegramUserID)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to assign manager: %w", err)
	}
	return true, nil
}

// RemoveManager deletes a manager assignment, reporting whether one existed.
func (s *Storage) RemoveManager(ctx context.Context, projectID int, telegramUserID int64) (bool, error) {
	query := `DELETE FROM project_managers WHERE project_id = $1 AND telegram_user_id = $2`
	result, err := s.db.ExecContext(ctx, query, projectID, telegramUserID)
	if err != nil {
		return false, fmt.Errorf("failed to remove manager: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListManagersByProject returns all manager assignments of a project.
func (s *Storage) ListManagersByProject(ctx context.Context, projectID int) ([]store.ProjectManager, error) {
	query := `SELECT project_id, telegram_user_id FROM project_managers WHERE project_id = $1`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list managers: %w", err)
	}
	defer rows.Close()

	var managers []store.ProjectManager
	for rows.Next() {
		var manager store.ProjectManager
		if err := rows.Scan(&manager.ProjectID, &manager.TelegramUserID); err != nil {
			return nil, fmt.Errorf("failed to scan manager: %w", err)
		}
		managers = append(managers, manager)
	}
	return managers, rows.Err()
}

// AssignStageUser adds a stage membership, false on duplicate.
func (s *Storage) AssignStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error) {
	query := `INSERT INTO stage_users (stage_id, telegram_user_id) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, stageID, telegramUserID)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to assign stage user: %w", err)
	}
	return true, nil
}

// RemoveStageUser deletes a stage membership, reporting whether one existed.
func (s *Storage) RemoveStageUser(ctx context.Context, stageID int, telegramUserID int64) (bool, error) {
	query := `DELETE FROM stage_users WHERE stage_id = $1 AND telegram_user_id = $2`
	result, err := s.db.ExecContext(ctx, query, stageID, telegramUserID)
	if err != nil {
		return false, fmt.Errorf("failed to remove stage user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListUsersByStage returns all memberships of a stage.
func (s *Storage) ListUsersByStage(ctx context.Context, stageID int) ([]store.StageUser, error) {
	query := `SELECT stage_id, telegram_user_id FROM stage_users WHERE stage_id = $1`

	rows, err := s.db.QueryContext(ctx, query, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage users: %w", err)
	}
	defer rows.Close()

	var users []store.StageUser
	for rows.Next() {
		var su store.StageUser
		if err := rows.Scan(&su.StageID, &su.TelegramUserID); err != nil {
			return nil, fmt.Errorf("failed to scan stage user: %w", err)
		}
		users = append(users, su)
	}
	return users, rows.Err()
}

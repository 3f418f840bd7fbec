// Package tasks persists goals and tasks and derives the planner output used
// by the study features: top priorities and weekly completion metrics.
package tasks

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Goal is a planning target at some level (year, month, week, day).
type Goal struct {
	ID           int64    `json:"id"`
	ParentGoalID *int64   `json:"parent_goal_id,omitempty"`
	Level        string   `json:"level"`
	Title        string   `json:"title"`
	Metric       string   `json:"metric,omitempty"`
	Target       *float64 `json:"target,omitempty"`
	Deadline     string   `json:"deadline,omitempty"` // YYYY-MM-DD
	Weight       float64  `json:"weight"`
	Status       string   `json:"status"`
}

// Task is a unit of work, optionally attached to a goal.
type Task struct {
	ID          int64  `json:"id"`
	GoalID      *int64 `json:"goal_id,omitempty"`
	Title       string `json:"title"`
	Due         string `json:"due,omitempty"` // YYYY-MM-DD
	EstimateMin *int   `json:"estimate_min,omitempty"`
	Status      string `json:"status"`
}

// Metrics summarizes task completion.
type Metrics struct {
	TasksTotal      int     `json:"tasks_total"`
	TasksDone       int     `json:"tasks_done"`
	CompletionRatio float64 `json:"completion_ratio"`
}

// Store manages the goals/tasks database.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath. Use ":memory:" for
// tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tasks database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		parent_goal_id INTEGER,
		level TEXT NOT NULL,
		title TEXT NOT NULL,
		metric TEXT,
		target REAL,
		deadline TEXT,
		weight REAL NOT NULL DEFAULT 1.0,
		status TEXT NOT NULL DEFAULT 'planned'
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		goal_id INTEGER,
		title TEXT NOT NULL,
		due TEXT,
		estimate_min INTEGER,
		status TEXT NOT NULL DEFAULT 'todo'
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tasks schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateGoal inserts g for the user and fills in its ID and defaults.
func (s *Store) CreateGoal(ctx context.Context, userID string, g *Goal) error {
	if g.Weight == 0 {
		g.Weight = 1.0
	}
	g.Status = "planned"

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, parent_goal_id, level, title, metric, target, deadline, weight, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, g.ParentGoalID, g.Level, g.Title, nullable(g.Metric), g.Target, nullable(g.Deadline), g.Weight, g.Status)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	g.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("goal id: %w", err)
	}
	return nil
}

// CreateTask inserts t for the user and fills in its ID.
func (s *Store) CreateTask(ctx context.Context, userID string, t *Task) error {
	t.Status = "todo"

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, goal_id, title, due, estimate_min, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, t.GoalID, t.Title, nullable(t.Due), t.EstimateMin, t.Status)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	return nil
}

// TopPriorities returns the titles of the next n not-done tasks by due date,
// undated tasks last. With no matching tasks it falls back to a starter list
// so the endpoint always suggests something.
func (s *Store) TopPriorities(ctx context.Context, userID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title FROM tasks
		WHERE user_id = ? AND status != 'done'
		ORDER BY due IS NULL, due ASC
		LIMIT ?`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query priorities: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query priorities: %w", err)
	}

	if len(titles) == 0 {
		return []string{"Review notes 25 min", "Finish math problem set", "Prep lab outline"}, nil
	}
	return titles, nil
}

// WeeklyMetrics counts the user's tasks and how many are done.
func (s *Store) WeeklyMetrics(ctx context.Context, userID string) (Metrics, error) {
	var m Metrics
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(status = 'done'), 0)
		FROM tasks WHERE user_id = ?`, userID).Scan(&m.TasksTotal, &m.TasksDone)
	if err != nil {
		return m, fmt.Errorf("query metrics: %w", err)
	}
	if m.TasksTotal > 0 {
		m.CompletionRatio = float64(m.TasksDone) / float64(m.TasksTotal)
	}
	return m, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/imagvfx/autolite"
)

// CreateTasksTable creates tasks table to a database if not exists.
// It is ok to call it multiple times.
func CreateTasksTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			name TEXT PRIMARY KEY,
			parent TEXT NOT NULL,
			schedule TEXT NOT NULL,
			state TEXT NOT NULL,
			command TEXT NOT NULL,
			condition TEXT NOT NULL,
			email TEXT NOT NULL,
			resources TEXT NOT NULL,
			log TEXT NOT NULL,
			last TEXT NOT NULL,
			pid INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS tasks_parent ON tasks (parent)`)
	return err
}

// TaskService interacts with a database for autolite tasks.
type TaskService struct {
	db *sql.DB
}

// NewTaskService creates a new TaskService.
func NewTaskService(db *sql.DB) *TaskService {
	return &TaskService{db: db}
}

// AddTask adds a task into a database.
func (s *TaskService) AddTask(t *autolite.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = addTask(tx, t)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func addTask(tx *sql.Tx, t *autolite.Task) error {
	_, err := tx.Exec(`
		INSERT INTO tasks (
			name,
			parent,
			schedule,
			state,
			command,
			condition,
			email,
			resources,
			log,
			last,
			pid
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.Name,
		t.Parent,
		t.Schedule,
		t.State,
		t.Command,
		t.Condition,
		t.Email,
		t.Resources,
		t.Log,
		t.Last,
		t.Pid,
	)
	if err != nil {
		return conflict(err, "tasks", t.Name)
	}
	return nil
}

// GetTask gets a task by its name.
func (s *TaskService) GetTask(name string) (*autolite.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	t, err := getTask(tx, name)
	if err != nil {
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func getTask(tx *sql.Tx, name string) (*autolite.Task, error) {
	ts, err := findTasks(tx, autolite.TaskFilter{Name: name})
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, autolite.NotFound("tasks", name)
	}
	return ts[0], nil
}

// FindTasks finds tasks those matched with given filter, ordered by name.
func (s *TaskService) FindTasks(f autolite.TaskFilter) ([]*autolite.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	ts, err := findTasks(tx, f)
	if err != nil {
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func findTasks(tx *sql.Tx, f autolite.TaskFilter) ([]*autolite.Task, error) {
	where := NewWhere()
	if f.Name != "" {
		where.Add("name", f.Name)
	}
	if f.Parent != nil {
		where.Add("parent", *f.Parent)
	}
	if f.State != nil {
		where.Add("state", *f.State)
	}
	rows, err := tx.Query(`
		SELECT
			name,
			parent,
			schedule,
			state,
			command,
			condition,
			email,
			resources,
			log,
			last,
			pid
		FROM tasks
		`+where.Stmt()+`
		ORDER BY name ASC
	`,
		where.Vals()...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := make([]*autolite.Task, 0)
	for rows.Next() {
		t := &autolite.Task{}
		err := rows.Scan(
			&t.Name,
			&t.Parent,
			&t.Schedule,
			&t.State,
			&t.Command,
			&t.Condition,
			&t.Email,
			&t.Resources,
			&t.Log,
			&t.Last,
			&t.Pid,
		)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask updates a task's fields in a single transaction.
func (s *TaskService) UpdateTask(u autolite.TaskUpdater) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = updateTask(tx, u)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func updateTask(tx *sql.Tx, u autolite.TaskUpdater) error {
	set := NewSet()
	if u.Parent != nil {
		set.Add("parent", *u.Parent)
	}
	if u.Schedule != nil {
		set.Add("schedule", *u.Schedule)
	}
	if u.State != nil {
		set.Add("state", *u.State)
	}
	if u.Command != nil {
		set.Add("command", *u.Command)
	}
	if u.Condition != nil {
		set.Add("condition", *u.Condition)
	}
	if u.Email != nil {
		set.Add("email", *u.Email)
	}
	if u.Resources != nil {
		set.Add("resources", *u.Resources)
	}
	if u.Log != nil {
		set.Add("log", *u.Log)
	}
	if u.Last != nil {
		set.Add("last", *u.Last)
	}
	if u.Pid != nil {
		set.Add("pid", *u.Pid)
	}
	if set.Len() == 0 {
		return fmt.Errorf("need at least one parameter to update")
	}
	vals := append(set.Vals(), u.Name)
	result, err := tx.Exec(`
		UPDATE tasks
		`+set.Stmt()+`
		WHERE name = ?
	`,
		vals...,
	)
	if err != nil {
		return err
	}
	return affected(result, "tasks", u.Name)
}

// DeleteTask deletes a task. It doesn't touch the task's subtasks.
func (s *TaskService) DeleteTask(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	result, err := tx.Exec(`DELETE FROM tasks WHERE name = ?`, name)
	if err != nil {
		return err
	}
	err = affected(result, "tasks", name)
	if err != nil {
		return err
	}
	return tx.Commit()
}

package sqlite

import (
	"database/sql"

	"github.com/imagvfx/autolite"
)

// Services keeps tasks and systems in a sqlite database.
type Services struct {
	ts *TaskService
	ss *SystemService
}

func NewServices(db *sql.DB) *Services {
	return &Services{
		ts: NewTaskService(db),
		ss: NewSystemService(db),
	}
}

func (s *Services) TaskService() autolite.TaskService {
	return s.ts
}

func (s *Services) SystemService() autolite.SystemService {
	return s.ss
}

package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/imagvfx/autolite"
)

// CreateSystemsTable creates systems table to a database if not exists.
// It is ok to call it multiple times.
func CreateSystemsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS systems (
			name TEXT PRIMARY KEY,
			ip TEXT NOT NULL,
			installer TEXT NOT NULL,
			cleaner TEXT NOT NULL,
			monitor TEXT NOT NULL,
			config TEXT NOT NULL,
			user TEXT NOT NULL,
			comment TEXT NOT NULL
		);
	`)
	return err
}

// SystemService interacts with a database for autolite systems.
type SystemService struct {
	db *sql.DB
}

// NewSystemService creates a new SystemService.
func NewSystemService(db *sql.DB) *SystemService {
	return &SystemService{db: db}
}

// AddSystem adds a system into a database.
func (s *SystemService) AddSystem(sys *autolite.System) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.Exec(`
		INSERT INTO systems (
			name,
			ip,
			installer,
			cleaner,
			monitor,
			config,
			user,
			comment
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sys.Name,
		sys.IP,
		sys.Installer,
		sys.Cleaner,
		sys.Monitor,
		sys.Config,
		sys.User,
		sys.Comment,
	)
	if err != nil {
		return conflict(err, "systems", sys.Name)
	}
	return tx.Commit()
}

// GetSystem gets a system by its name.
func (s *SystemService) GetSystem(name string) (*autolite.System, error) {
	systems, err := s.FindSystems(autolite.SystemFilter{Name: name})
	if err != nil {
		return nil, err
	}
	if len(systems) == 0 {
		return nil, autolite.NotFound("systems", name)
	}
	return systems[0], nil
}

// FindSystems finds systems those matched with given filter, ordered by name.
func (s *SystemService) FindSystems(f autolite.SystemFilter) ([]*autolite.System, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	systems, err := findSystems(tx, f)
	if err != nil {
		return nil, err
	}
	err = tx.Commit()
	if err != nil {
		return nil, err
	}
	return systems, nil
}

func findSystems(tx *sql.Tx, f autolite.SystemFilter) ([]*autolite.System, error) {
	where := NewWhere()
	if f.Name != "" {
		where.Add("name", f.Name)
	}
	if f.User != nil {
		where.Add("user", *f.User)
	}
	rows, err := tx.Query(`
		SELECT
			name,
			ip,
			installer,
			cleaner,
			monitor,
			config,
			user,
			comment
		FROM systems
		`+where.Stmt()+`
		ORDER BY name ASC
	`,
		where.Vals()...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	systems := make([]*autolite.System, 0)
	for rows.Next() {
		sys := &autolite.System{}
		err := rows.Scan(
			&sys.Name,
			&sys.IP,
			&sys.Installer,
			&sys.Cleaner,
			&sys.Monitor,
			&sys.Config,
			&sys.User,
			&sys.Comment,
		)
		if err != nil {
			return nil, err
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

// UpdateSystem updates a system's fields in a single transaction.
func (s *SystemService) UpdateSystem(u autolite.SystemUpdater) error {
	set := NewSet()
	if u.IP != nil {
		set.Add("ip", *u.IP)
	}
	if u.Installer != nil {
		set.Add("installer", *u.Installer)
	}
	if u.Cleaner != nil {
		set.Add("cleaner", *u.Cleaner)
	}
	if u.Monitor != nil {
		set.Add("monitor", *u.Monitor)
	}
	if u.Config != nil {
		set.Add("config", *u.Config)
	}
	if u.User != nil {
		set.Add("user", *u.User)
	}
	if u.Comment != nil {
		set.Add("comment", *u.Comment)
	}
	if set.Len() == 0 {
		return fmt.Errorf("need at least one parameter to update")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	vals := append(set.Vals(), u.Name)
	result, err := tx.Exec(`
		UPDATE systems
		`+set.Stmt()+`
		WHERE name = ?
	`,
		vals...,
	)
	if err != nil {
		return err
	}
	err = affected(result, "systems", u.Name)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// SwapSystemUser changes the system's user to to, only when it is from.
// It reports whether it changed.
func (s *SystemService) SwapSystemUser(name, from, to string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	result, err := tx.Exec(`
		UPDATE systems
		SET user = ?
		WHERE name = ? AND user = ?
	`,
		to, name, from,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM systems WHERE name = ?`, name).Scan(&exists)
		if err != nil {
			return false, err
		}
		if exists == 0 {
			return false, autolite.NotFound("systems", name)
		}
		return false, nil
	}
	err = tx.Commit()
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteSystem deletes a system.
func (s *SystemService) DeleteSystem(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	result, err := tx.Exec(`DELETE FROM systems WHERE name = ?`, name)
	if err != nil {
		return err
	}
	err = affected(result, "systems", name)
	if err != nil {
		return err
	}
	return tx.Commit()
}

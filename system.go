package autolite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// System is an external resource operators take turns on.
// Only the user holding the system may run its maintenance scripts.
type System struct {
	Name string
	IP   string

	// Installer, Cleaner, Monitor and Config are shell commands
	// maintaining the system.
	Installer string
	Cleaner   string
	Monitor   string
	Config    string

	// User is the user holding the system. Empty User means the system is free.
	User string

	Comment string
}

// Free indicates nobody holds the system.
func (s *System) Free() bool {
	return s.User == ""
}

// SystemFields are field names of a system, in display order.
var SystemFields = []string{"name", "ip", "installer", "cleaner", "monitor", "config", "user", "comment"}

// Fields returns the system's fields as they are stored.
func (s *System) Fields() map[string]string {
	return map[string]string{
		"name":      s.Name,
		"ip":        s.IP,
		"installer": s.Installer,
		"cleaner":   s.Cleaner,
		"monitor":   s.Monitor,
		"config":    s.Config,
		"user":      s.User,
		"comment":   s.Comment,
	}
}

// String represents the system as its non-empty fields.
func (s *System) String() string {
	return fieldsString(s.Fields(), SystemFields)
}

// MarshalJSON implements json.Marshaler.
func (s *System) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

// MarshalYAML implements yaml.Marshaler.
func (s *System) MarshalYAML() (interface{}, error) {
	return s.Fields(), nil
}

// SystemCommand is an operation an operator runs on a system.
type SystemCommand int

const (
	SystemAcquire = SystemCommand(iota)
	SystemRelease
	SystemInstall
	SystemClean
	SystemMonitor
	SystemConfig
)

// SystemCommands are all system commands.
var SystemCommands = []SystemCommand{SystemAcquire, SystemRelease, SystemInstall, SystemClean, SystemMonitor, SystemConfig}

// String represents SystemCommand as string.
func (c SystemCommand) String() string {
	return map[SystemCommand]string{
		SystemAcquire: "acquire",
		SystemRelease: "release",
		SystemInstall: "install",
		SystemClean:   "clean",
		SystemMonitor: "monitor",
		SystemConfig:  "config",
	}[c]
}

// ParseSystemCommand parses a system command name.
func ParseSystemCommand(s string) (SystemCommand, error) {
	for _, c := range SystemCommands {
		if c.String() == s {
			return c, nil
		}
	}
	return SystemAcquire, fmt.Errorf("unknown system command: %q", s)
}

// SystemManager manages systems and their locks.
type SystemManager struct {
	systems SystemService
	shell   *Shell
	log     logrus.FieldLogger
}

// NewSystemManager creates a new SystemManager.
// Maintenance scripts will be run with shell.
func NewSystemManager(systems SystemService, shell *Shell, log logrus.FieldLogger) *SystemManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SystemManager{systems: systems, shell: shell, log: log}
}

// Create adds a new free system.
func (m *SystemManager) Create(s *System) error {
	if s.Name == "" {
		return fmt.Errorf("system name required")
	}
	s.User = ""
	err := m.systems.AddSystem(s)
	if err != nil {
		return err
	}
	m.log.WithField("system", s.Name).Info("created system")
	return nil
}

// Get reads a system.
func (m *SystemManager) Get(name string) (*System, error) {
	return m.systems.GetSystem(name)
}

// List finds systems matched with the filter.
func (m *SystemManager) List(f SystemFilter) ([]*System, error) {
	return m.systems.FindSystems(f)
}

// Update sets the system's fields at once.
// The holder cannot be changed with it. Use Acquire and Release.
func (m *SystemManager) Update(u SystemUpdater) error {
	if u.User != nil {
		return fmt.Errorf("cannot set user of a system directly: %v", u.Name)
	}
	if u.Empty() {
		return fmt.Errorf("unexpected empty attrs to set for system: %v", u.Name)
	}
	return m.systems.UpdateSystem(u)
}

// Delete deletes a system even when it is held by somebody.
func (m *SystemManager) Delete(name string) error {
	err := m.systems.DeleteSystem(name)
	if err != nil {
		return err
	}
	m.log.WithField("system", name).Info("deleted system")
	return nil
}

// Acquire makes caller hold the system.
// It returns a warning if caller already holds it, or a permission error
// if somebody else holds it.
func (m *SystemManager) Acquire(name, caller string) error {
	s, err := m.systems.GetSystem(name)
	if err != nil {
		return err
	}
	if s.User == caller {
		return errorf(ErrWarning, "you have already acquired: %s", name)
	}
	if !s.Free() {
		return errorf(ErrPermission, "already acquired by: %s", s.User)
	}
	ok, err := m.systems.SwapSystemUser(name, "", caller)
	if err != nil {
		return err
	}
	if !ok {
		// somebody acquired it after we read it.
		return m.heldError(name, caller)
	}
	m.log.WithFields(logrus.Fields{"system": name, "user": caller}).Info("acquired system")
	return nil
}

// Release makes the system free.
// It returns a warning if the system is already free.
// Releasing a system held by somebody else needs force.
func (m *SystemManager) Release(name, caller string, force bool) error {
	s, err := m.systems.GetSystem(name)
	if err != nil {
		return err
	}
	if s.Free() {
		return errorf(ErrWarning, "already free: %s", name)
	}
	if s.User != caller && !force {
		return errorf(ErrPermission, "acquired by other: %s", s.User)
	}
	ok, err := m.systems.SwapSystemUser(name, s.User, "")
	if err != nil {
		return err
	}
	if !ok {
		return errorf(ErrPermission, "%s changed hands while releasing", name)
	}
	m.log.WithFields(logrus.Fields{"system": name, "user": caller, "holder": s.User}).Info("released system")
	return nil
}

// heldError re-reads the system to report who holds it.
func (m *SystemManager) heldError(name, caller string) error {
	s, err := m.systems.GetSystem(name)
	if err != nil {
		return err
	}
	if s.User == caller {
		return errorf(ErrWarning, "you have already acquired: %s", name)
	}
	if s.Free() {
		return errorf(ErrPermission, "%s changed hands while acquiring", name)
	}
	return errorf(ErrPermission, "already acquired by: %s", s.User)
}

// Claim checks caller may run the system's scripts.
// It passes when the system is free or held by caller.
func (m *SystemManager) Claim(name, caller string) (*System, error) {
	s, err := m.systems.GetSystem(name)
	if err != nil {
		return nil, err
	}
	if !s.Free() && s.User != caller {
		return nil, errorf(ErrPermission, "%s is acquired by: %s", name, s.User)
	}
	return s, nil
}

// Install runs the system's installer. It fails if the installer exits nonzero.
func (m *SystemManager) Install(ctx context.Context, name, caller string) error {
	return m.assertScript(ctx, name, caller, SystemInstall, func(s *System) string { return s.Installer })
}

// Clean runs the system's cleaner. It fails if the cleaner exits nonzero.
func (m *SystemManager) Clean(ctx context.Context, name, caller string) error {
	return m.assertScript(ctx, name, caller, SystemClean, func(s *System) string { return s.Cleaner })
}

// Monitor runs the system's monitor and reports whether it exited with 0.
func (m *SystemManager) Monitor(ctx context.Context, name, caller string) (bool, error) {
	return m.testScript(ctx, name, caller, SystemMonitor, func(s *System) string { return s.Monitor })
}

// Configure runs the system's config script and reports whether it exited with 0.
func (m *SystemManager) Configure(ctx context.Context, name, caller string) (bool, error) {
	return m.testScript(ctx, name, caller, SystemConfig, func(s *System) string { return s.Config })
}

// Execute runs cmd on the system.
// The bool result is meaningful to SystemMonitor and SystemConfig only,
// and is true for the other commands when they succeeded.
func (m *SystemManager) Execute(ctx context.Context, cmd SystemCommand, name, caller string, force bool) (bool, error) {
	var err error
	switch cmd {
	case SystemAcquire:
		err = m.Acquire(name, caller)
	case SystemRelease:
		err = m.Release(name, caller, force)
	case SystemInstall:
		err = m.Install(ctx, name, caller)
	case SystemClean:
		err = m.Clean(ctx, name, caller)
	case SystemMonitor:
		return m.Monitor(ctx, name, caller)
	case SystemConfig:
		return m.Configure(ctx, name, caller)
	default:
		return false, fmt.Errorf("unknown system command: %d", cmd)
	}
	return err == nil, err
}

func (m *SystemManager) runScript(ctx context.Context, name, caller string, cmd SystemCommand, script func(*System) string) (int, error) {
	s, err := m.Claim(name, caller)
	if err != nil {
		return -1, err
	}
	sc := script(s)
	if sc == "" {
		return -1, errorf(ErrPrecondition, "%s has no %s script", name, cmd)
	}
	log := m.log.WithFields(logrus.Fields{"system": name, "command": cmd.String()})
	log.Debugf("running: %s", sc)
	code, err := m.shell.Run(ctx, sc, "AUTOLITE_SYSTEM_NAME="+s.Name, "AUTOLITE_SYSTEM_IP="+s.IP)
	if err != nil {
		return -1, err
	}
	log.WithField("exit", code).Info("script finished")
	return code, nil
}

func (m *SystemManager) assertScript(ctx context.Context, name, caller string, cmd SystemCommand, script func(*System) string) error {
	code, err := m.runScript(ctx, name, caller, cmd, script)
	if err != nil {
		return err
	}
	if code != 0 {
		return errorf(ErrScript, "%s %s exited with %d", name, cmd, code)
	}
	return nil
}

func (m *SystemManager) testScript(ctx context.Context, name, caller string, cmd SystemCommand, script func(*System) string) (bool, error) {
	code, err := m.runScript(ctx, name, caller, cmd, script)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

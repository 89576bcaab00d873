package autolite

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// termGrace is how long a process tree may take to exit after SIGTERM.
// What is left after that is killed.
var termGrace = 2 * time.Second

// terminateTree sends SIGTERM to the process and all of its descendants,
// then kills the ones still alive after termGrace.
func terminateTree(pid int) error {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("process %d: %w", pid, err)
	}
	// Collect the whole tree first, so descendants aren't lost by being
	// reparented when their parent exits.
	procs := collect(root)
	err = root.Terminate()
	for _, p := range procs[1:] {
		p.Terminate()
	}
	deadline := time.Now().Add(termGrace)
	for time.Now().Before(deadline) {
		if !anyAlive(procs) {
			return err
		}
		time.Sleep(50 * time.Millisecond)
	}
	for _, p := range procs {
		if running(p) {
			p.Kill()
		}
	}
	return err
}

// collect returns p and its descendants, p first.
func collect(p *process.Process) []*process.Process {
	procs := []*process.Process{p}
	// Children returns an error when there is no child.
	children, _ := p.Children()
	for _, c := range children {
		procs = append(procs, collect(c)...)
	}
	return procs
}

func anyAlive(procs []*process.Process) bool {
	for _, p := range procs {
		if running(p) {
			return true
		}
	}
	return false
}

// running reports whether p is alive. A zombie is not.
func running(p *process.Process) bool {
	ok, err := p.IsRunning()
	if err != nil || !ok {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return false
	}
	return len(status) == 0 || status[0] != process.Zombie
}

// alive reports whether a process with the pid exists and isn't a zombie.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	return running(p)
}

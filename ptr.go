package autolite

// ptr functions are used for creating pointer to const and untyped values,
// which cannot take their address directly.

// ptrInt returns a pointer to an int.
func ptrInt(v int) *int {
	return &v
}

// ptrTaskState returns a pointer to a TaskState.
func ptrTaskState(v TaskState) *TaskState {
	return &v
}

// ptrLastRun returns a pointer to a LastRun.
func ptrLastRun(v LastRun) *LastRun {
	return &v
}

package remote

import "fmt"

// PermissionError reports an authenticated command that the identity's
// permission set does not cover. The missing permission is named so the
// client UI can explain the denial.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return "permission denied: requires " + e.Permission
}

// UnknownCommandError reports a command name absent from the router table.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return "unknown command: " + e.Command
}

// CommandExecutionError wraps a collaborator failure so the original
// message reaches the client without being mistaken for a routing error.
type CommandExecutionError struct {
	Command string
	Err     error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandExecutionError) Unwrap() error { return e.Err }

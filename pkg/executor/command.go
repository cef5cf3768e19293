package executor

import (
	"context"
	"fmt"
	"os/exec"
)

// InterpreterExecutor launches artifacts through an interpreter, e.g. "java -jar"
// or "sh".
type InterpreterExecutor struct {
	name        string
	interpreter string
	flags       []string
}

// NewJarExecutor creates an executor that runs archives with "<java> -jar".
func NewJarExecutor(javaBin string) *InterpreterExecutor {
	if javaBin == "" {
		javaBin = "java"
	}
	return &InterpreterExecutor{name: "jar", interpreter: javaBin, flags: []string{"-jar"}}
}

// NewShellExecutor creates an executor that runs scripts with "<sh>".
func NewShellExecutor(shellBin string) *InterpreterExecutor {
	if shellBin == "" {
		shellBin = "sh"
	}
	return &InterpreterExecutor{name: "shell", interpreter: shellBin}
}

// Name returns the executor name.
func (e *InterpreterExecutor) Name() string {
	return e.name
}

// Command returns the interpreter invocation for path.
func (e *InterpreterExecutor) Command(path, param string) []string {
	argv := make([]string, 0, len(e.flags)+3)
	argv = append(argv, e.interpreter)
	argv = append(argv, e.flags...)
	return appendArgs(argv, path, param)
}

// HealthCheck verifies the interpreter can be found.
func (e *InterpreterExecutor) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(e.interpreter); err != nil {
		return fmt.Errorf("%s interpreter: %w", e.name, err)
	}
	return nil
}

// BinaryExecutor launches the artifact itself.
type BinaryExecutor struct{}

// NewBinaryExecutor creates a direct executor.
func NewBinaryExecutor() *BinaryExecutor {
	return &BinaryExecutor{}
}

// Name returns the executor name.
func (e *BinaryExecutor) Name() string {
	return "binary"
}

// Command returns path with the optional parameter.
func (e *BinaryExecutor) Command(path, param string) []string {
	return appendArgs(make([]string, 0, 2), path, param)
}

// HealthCheck always succeeds; each artifact is checked when it is launched.
func (e *BinaryExecutor) HealthCheck(ctx context.Context) error {
	return nil
}

func appendArgs(argv []string, path, param string) []string {
	argv = append(argv, path)
	if param != "" {
		argv = append(argv, param)
	}
	return argv
}

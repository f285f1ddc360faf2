package finalizer

import (
	"fmt"
	"os"
	"os/exec"

	"calibrator/internal/debug"
	apperrors "calibrator/internal/errors"
)

// Materialize renders plan for flavor and writes it to plan.ScriptPath.
func Materialize(plan Plan, flavor Flavor) (string, error) {
	script, err := Render(plan, flavor)
	if err != nil {
		return "", apperrors.New(apperrors.CodeFinalizer, "render replacement script", err)
	}
	//nolint:gosec // G306: the script must be executable by the user
	if err := os.WriteFile(plan.ScriptPath, []byte(script), 0o700); err != nil {
		return "", apperrors.New(apperrors.CodeFinalizer, "write replacement script", err)
	}
	debug.Info("replacement script written", "path", plan.ScriptPath, "flavor", flavor, "template", TemplateVersion)
	return plan.ScriptPath, nil
}

// startDetached is a function variable to allow overriding in tests.
var startDetached = func(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	// The child outlives us; drop our handle without waiting.
	return cmd.Process.Release()
}

// Launch starts the script as a detached process that does not share the
// caller's open files, session or console, and returns without waiting.
func Launch(scriptPath string, flavor Flavor) error {
	cmd := scriptCommand(scriptPath, flavor)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := startDetached(cmd); err != nil {
		return apperrors.New(apperrors.CodeFinalizer, fmt.Sprintf("launch %s", scriptPath), err)
	}
	debug.Info("replacement script launched", "path", scriptPath)
	return nil
}

// Schedule writes the script for plan and launches it. When launching
// fails the script is removed so nothing runs later by accident.
func Schedule(plan Plan, flavor Flavor) error {
	path, err := Materialize(plan, flavor)
	if err != nil {
		return err
	}
	if err := Launch(path, flavor); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func scriptCommand(scriptPath string, flavor Flavor) *exec.Cmd {
	if flavor == Batch {
		//nolint:gosec // G204: script path was generated by Materialize
		return exec.Command("cmd.exe", "/c", scriptPath)
	}
	//nolint:gosec // G204: script path was generated by Materialize
	return exec.Command("/bin/sh", scriptPath)
}

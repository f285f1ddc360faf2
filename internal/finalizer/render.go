package finalizer

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/alessio/shellescape"
	"mvdan.cc/sh/v3/syntax"
)

// Error variables for finalizer failures.
var (
	ErrInvalidPlan = errors.New("invalid replacement plan")
	ErrUnsafePath  = errors.New("path cannot be embedded in a batch script")
	ErrScriptCheck = errors.New("generated script failed syntax check")
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))

// view holds plan values already quoted or checked for one flavor.
type view struct {
	Version      int
	Product      string
	ParentPID    int
	WaitLimit    int
	GraceSeconds int
	InstallDir   string
	OldExe       string
	OldInternal  string
	NewExe       string
	NewInternal  string
	StagingDir   string
	Archive      string
	Script       string
	FailureLog   string
	HasBackup    bool
	BackupDir    string
	Entries      []string
}

// Render produces the replacement script for plan in the given dialect.
// POSIX output is parsed before it is returned.
func Render(plan Plan, flavor Flavor) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}

	var (
		v    view
		name string
		err  error
	)
	switch flavor {
	case POSIX:
		v, name = posixView(plan), "replace.sh.tmpl"
	case Batch:
		v, err = batchView(plan)
		if err != nil {
			return "", err
		}
		name = "replace.bat.tmpl"
	default:
		return "", fmt.Errorf("%w: unknown flavor %v", ErrInvalidPlan, flavor)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	script := buf.String()

	if flavor == Batch {
		return strings.ReplaceAll(script, "\n", "\r\n"), nil
	}
	if err := CheckPOSIX(script); err != nil {
		return "", err
	}
	return script, nil
}

// CheckPOSIX parses script as POSIX shell.
func CheckPOSIX(script string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(script), "replace.sh"); err != nil {
		return fmt.Errorf("%w: %v", ErrScriptCheck, err)
	}
	return nil
}

func baseView(plan Plan) view {
	return view{
		Version:      TemplateVersion,
		Product:      plan.Product,
		ParentPID:    plan.ParentPID,
		WaitLimit:    DefaultWaitLimit,
		GraceSeconds: plan.graceSeconds(),
		HasBackup:    plan.BackupDir != "" && len(plan.BackupEntries) > 0,
	}
}

func posixView(plan Plan) view {
	v := baseView(plan)
	v.InstallDir = shellescape.Quote(plan.InstallDir)
	v.OldExe = shellescape.Quote(plan.OldExecutable())
	v.OldInternal = shellescape.Quote(plan.OldInternalDir())
	v.NewExe = shellescape.Quote(plan.NewExecutable)
	v.NewInternal = shellescape.Quote(plan.NewInternalDir)
	v.StagingDir = shellescape.Quote(plan.StagingDir)
	v.Archive = shellescape.Quote(plan.ArchivePath)
	v.Script = shellescape.Quote(plan.ScriptPath)
	v.FailureLog = shellescape.Quote(plan.FailureLog())
	if v.HasBackup {
		v.BackupDir = shellescape.Quote(plan.BackupDir)
		for _, e := range plan.BackupEntries {
			v.Entries = append(v.Entries, shellescape.Quote(e))
		}
	}
	return v
}

func batchView(plan Plan) (view, error) {
	v := baseView(plan)
	fields := []struct {
		dst *string
		src string
	}{
		{&v.InstallDir, plan.InstallDir},
		{&v.OldExe, plan.OldExecutable()},
		{&v.OldInternal, plan.OldInternalDir()},
		{&v.NewExe, plan.NewExecutable},
		{&v.NewInternal, plan.NewInternalDir},
		{&v.StagingDir, plan.StagingDir},
		{&v.Archive, plan.ArchivePath},
		{&v.Script, plan.ScriptPath},
		{&v.FailureLog, plan.FailureLog()},
	}
	if v.HasBackup {
		fields = append(fields, struct {
			dst *string
			src string
		}{&v.BackupDir, plan.BackupDir})
	}
	for _, f := range fields {
		if err := checkBatchPath(f.src); err != nil {
			return view{}, err
		}
		*f.dst = f.src
	}
	if v.HasBackup {
		for _, e := range plan.BackupEntries {
			v.Entries = append(v.Entries, strings.ReplaceAll(e, "/", `\`))
		}
	}
	return v, nil
}

// batchUnsafe lists characters cmd.exe interprets even inside quotes, or
// that would end a quoted argument.
const batchUnsafe = "\"%!^&|<>"

func checkBatchPath(p string) error {
	for _, r := range p {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(batchUnsafe, r) {
			return fmt.Errorf("%w: %q contains %q", ErrUnsafePath, p, r)
		}
	}
	return nil
}

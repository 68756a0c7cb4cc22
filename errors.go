package pidcalib

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid user input: bad binnings, unknown samples,
// malformed override files. It is fatal and reported before any file I/O.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// CutSyntaxError reports a malformed cut expression. Cuts are compiled
// eagerly so this surfaces before any calibration file is opened.
type CutSyntaxError struct {
	Expr string
	Msg  string
}

func (e *CutSyntaxError) Error() string {
	return fmt.Sprintf("cut syntax error in %q: %s", e.Expr, e.Msg)
}

// UnknownVariableError reports a cut variable that is absent from the
// columns of the batch being evaluated.
type UnknownVariableError struct {
	Name    string
	Columns []string
}

func (e *UnknownVariableError) Error() string {
	if len(e.Columns) == 0 {
		return fmt.Sprintf("unknown variable %q", e.Name)
	}
	return fmt.Sprintf("unknown variable %q (batch has: %s)",
		e.Name, strings.Join(e.Columns, ", "))
}

// DataSourceError reports an unreadable calibration or reference file, or
// one that is missing required columns. The failing path is always
// identified; files are never silently skipped.
type DataSourceError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *DataSourceError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("data source %s: missing columns: %s",
			e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("data source %s: %v", e.Path, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

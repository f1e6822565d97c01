package model

import (
	"fmt"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type CueErrorDetail struct {
	Path    string // executor.username
	Code    string // missing_required | unknown_field | conflicting_values | invalid_enum | type_mismatch | validation_error
	Message string
	Line    int
	Column  int
}

func (c CueErrorDetail) String() string {
	if c.Line == 0 {
		return fmt.Sprintf("%s: %s", c.Code, c.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", c.Line, c.Column, c.Code, c.Message)
}

var (
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed  = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reEnum        = regexp.MustCompile(`(?i)empty disjunction|must be one of`)
	reExpectedGot = regexp.MustCompile(`(?i)expected .* got .*|mismatched types`)
)

// CueErrDetails converts schema validation errors into human readable
// details, one per distinct position.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}

	type pos struct{ line, column int }
	seen := make(map[pos]struct{})

	var out []CueErrorDetail
	for _, e := range cueerrors.Errors(err) {
		path := normalizePath(e.Path())
		code, msg := classify(e.Error(), path)

		var p pos
		for _, r := range cueerrors.Positions(e) {
			if r.Filename() == "" {
				continue
			}
			p = pos{line: r.Line(), column: r.Column()}
			break
		}
		if _, ok := seen[p]; ok && p != (pos{}) {
			continue
		}
		seen[p] = struct{}{}

		out = append(out, CueErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Line:    p.line,
			Column:  p.column,
		})
	}
	return out
}

func normalizePath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("Field %s is not allowed", path)
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("Field %s is required", path)
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("Conflicting values for %s", path)
	case reEnum.MatchString(raw):
		return "invalid_enum", fmt.Sprintf("Field %s has invalid value", path)
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", fmt.Sprintf("Field %s has wrong type/value", path)
	default:
		return "validation_error", raw
	}
}

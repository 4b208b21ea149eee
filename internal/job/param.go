package job

import (
	"fmt"
	"strings"
)

// Parameter names the deployment jobs expect. The environment parameter is
// configurable and not listed here.
const (
	ParamAppName    = "AppName"
	ParamBranch     = "BRANCH"
	ParamRelease    = "ITReleasedVersion"
	ParamChange     = "ChangeNumberPROD"
	ParamChangeTask = "CTaskPROD"
	ParamOBC        = "obc"
	ParamCBC        = "cbc"
)

// ParamKind identifies the type of a job parameter value.
type ParamKind int

const (
	ParamString ParamKind = iota
	ParamBool
)

// Param is a typed job parameter. Boolean parameters are coerced once when
// the descriptor is loaded and always render as "true" or "false".
type Param struct {
	kind ParamKind
	str  string
	b    bool
}

// StringParam returns a string parameter.
func StringParam(s string) Param {
	return Param{kind: ParamString, str: s}
}

// BoolParam returns a boolean parameter.
func BoolParam(b bool) Param {
	return Param{kind: ParamBool, b: b}
}

// Kind returns the parameter's type.
func (p Param) Kind() ParamKind {
	return p.kind
}

// Bool returns the boolean value and whether the parameter is boolean.
func (p Param) Bool() (bool, bool) {
	return p.b, p.kind == ParamBool
}

// String renders the parameter as the CI server expects it.
func (p Param) String() string {
	if p.kind == ParamBool {
		if p.b {
			return "true"
		}
		return "false"
	}
	return p.str
}

// ParseBool coerces the spreadsheet spellings of a flag. An empty cell is false.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "1":
		return true, nil
	case "no", "n", "false", "f", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// ParseBoolParam parses s into a boolean Param.
func ParseBoolParam(s string) (Param, error) {
	b, err := ParseBool(s)
	if err != nil {
		return Param{}, err
	}
	return BoolParam(b), nil
}

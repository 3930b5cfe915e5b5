package command

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFeature is wrapped by every structural violation: names,
	// nesting, counts, duplicates and total length.
	ErrUnsupportedFeature = errors.New("unsupported feature")
	// ErrUnsupportedParameterFeature is wrapped by parameter shapes or
	// enumerations the platform cannot express.
	ErrUnsupportedParameterFeature = errors.New("unsupported parameter feature")
)

// Reason names the limit a compile error violated.
type Reason int

const (
	ReasonInvalidName Reason = iota + 1
	ReasonTooDeep
	ReasonTooManySubcommands
	ReasonDuplicateName
	ReasonTooManyParameters
	ReasonTooManyTopLevel
	ReasonTooLong
	ReasonSwitch
	ReasonCollection
	ReasonTooManyChoices
	ReasonChoiceTooLong
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidName:
		return "invalid name"
	case ReasonTooDeep:
		return "group nested too deeply"
	case ReasonTooManySubcommands:
		return "too many subcommands"
	case ReasonDuplicateName:
		return "duplicate name"
	case ReasonTooManyParameters:
		return "too many parameters"
	case ReasonTooManyTopLevel:
		return "too many top-level commands"
	case ReasonTooLong:
		return "command too long"
	case ReasonSwitch:
		return "switch parameter"
	case ReasonCollection:
		return "collection parameter"
	case ReasonTooManyChoices:
		return "too many choices"
	case ReasonChoiceTooLong:
		return "choice too long"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

type (
	// UnsupportedFeatureError reports a node or name the platform rejects.
	// Path is the space-joined key path of the offending node and is empty
	// for limits on the whole tree. Parameter is set when the offending name
	// belongs to a parameter.
	UnsupportedFeatureError struct {
		Path      string
		Parameter string
		Reason    Reason
		Detail    string
	}

	// UnsupportedParameterFeatureError reports a parameter with no
	// slash-command equivalent.
	UnsupportedParameterFeatureError struct {
		Path      string
		Parameter string
		Reason    Reason
		Detail    string
	}
)

func (e *UnsupportedFeatureError) Error() string {
	subject := "command tree"
	switch {
	case e.Parameter != "":
		subject = fmt.Sprintf("parameter %q of %q", e.Parameter, e.Path)
	case e.Path != "":
		subject = fmt.Sprintf("%q", e.Path)
	}
	return fmt.Sprintf("%s: %s: %s", subject, e.Reason, e.Detail)
}

func (e *UnsupportedFeatureError) Unwrap() error {
	return ErrUnsupportedFeature
}

func (e *UnsupportedParameterFeatureError) Error() string {
	return fmt.Sprintf("parameter %q of %q: %s: %s", e.Parameter, e.Path, e.Reason, e.Detail)
}

func (e *UnsupportedParameterFeatureError) Unwrap() error {
	return ErrUnsupportedParameterFeature
}

package command

import "regexp"

// Platform limits for registered commands.
const (
	DefaultMaxTopLevel     = 100
	DefaultMaxSubcommands  = 25
	DefaultMaxGroupDepth   = 2
	DefaultMaxParameters   = 25
	DefaultMaxChoices      = 25
	DefaultMaxChoiceLength = 100
	DefaultMaxTotalLength  = 4000
)

// NamePattern is the platform's rule for command, group and parameter names:
// 1 to 32 letters, combining marks, decimal digits, connector punctuation or
// hyphens, in any script.
var NamePattern = regexp.MustCompile(`^[\p{L}\p{Mn}\p{Nd}\p{Pc}-]{1,32}$`)

// Limits bounds the compiled schema. A Compiler copies it on construction.
type Limits struct {
	MaxTopLevel     int `json:"maxTopLevel,omitempty"`
	MaxSubcommands  int `json:"maxSubcommands,omitempty"`
	MaxGroupDepth   int `json:"maxGroupDepth,omitempty"`
	MaxParameters   int `json:"maxParameters,omitempty"`
	MaxChoices      int `json:"maxChoices,omitempty"`
	MaxChoiceLength int `json:"maxChoiceLength,omitempty"`
	MaxTotalLength  int `json:"maxTotalLength,omitempty"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxTopLevel:     DefaultMaxTopLevel,
		MaxSubcommands:  DefaultMaxSubcommands,
		MaxGroupDepth:   DefaultMaxGroupDepth,
		MaxParameters:   DefaultMaxParameters,
		MaxChoices:      DefaultMaxChoices,
		MaxChoiceLength: DefaultMaxChoiceLength,
		MaxTotalLength:  DefaultMaxTotalLength,
	}
}

// WithDefaults returns l with every non-positive field replaced by the
// platform default.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&l.MaxTopLevel, d.MaxTopLevel)
	fill(&l.MaxSubcommands, d.MaxSubcommands)
	fill(&l.MaxGroupDepth, d.MaxGroupDepth)
	fill(&l.MaxParameters, d.MaxParameters)
	fill(&l.MaxChoices, d.MaxChoices)
	fill(&l.MaxChoiceLength, d.MaxChoiceLength)
	fill(&l.MaxTotalLength, d.MaxTotalLength)
	return l
}

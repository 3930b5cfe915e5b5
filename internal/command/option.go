package command

import (
	"fmt"
	"unicode/utf8"
)

// OptionType is the platform's numeric option type code.
type OptionType int

const (
	OptionSubCommand      OptionType = 1
	OptionSubCommandGroup OptionType = 2
	OptionString          OptionType = 3
	OptionInteger         OptionType = 4
	OptionBoolean         OptionType = 5
	OptionUser            OptionType = 6
	OptionChannel         OptionType = 7
	OptionRole            OptionType = 8
	OptionMentionable     OptionType = 9
	OptionNumber          OptionType = 10
	OptionAttachment      OptionType = 11
)

func (t OptionType) String() string {
	switch t {
	case OptionSubCommand:
		return "SubCommand"
	case OptionSubCommandGroup:
		return "SubCommandGroup"
	case OptionString:
		return "String"
	case OptionInteger:
		return "Integer"
	case OptionBoolean:
		return "Boolean"
	case OptionUser:
		return "User"
	case OptionChannel:
		return "Channel"
	case OptionRole:
		return "Role"
	case OptionMentionable:
		return "Mentionable"
	case OptionNumber:
		return "Number"
	case OptionAttachment:
		return "Attachment"
	default:
		return fmt.Sprintf("OptionType(%d)", int(t))
	}
}

// Option is one node of the wire schema submitted to the platform.
type Option struct {
	Type        OptionType `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Required    bool       `json:"required,omitempty"`
	Choices     []Choice   `json:"choices,omitempty"`
	Options     []Option   `json:"options,omitempty"`
}

// Choice is a fixed value offered for a string option.
type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StringifiedLength sums the character counts of the option's name,
// description and choices, plus those of every nested option.
func (o Option) StringifiedLength() int {
	n := utf8.RuneCountInString(o.Name) + utf8.RuneCountInString(o.Description)
	for _, c := range o.Choices {
		n += utf8.RuneCountInString(c.Name) + utf8.RuneCountInString(c.Value)
	}
	for _, child := range o.Options {
		n += child.StringifiedLength()
	}
	return n
}

package main

import (
	"errors"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stellarlinkco/cordkit/internal/command"
)

// RenderCompileError creates a styled report for a compile failure. Errors
// that are not compile errors are rendered as a plain message.
func RenderCompileError(err error) string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196")).
		MarginBottom(1)

	labelStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("214"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	hintStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("242")).
		Italic(true).
		MarginTop(1)

	var (
		path, param, detail string
		reason              command.Reason
		featErr             *command.UnsupportedFeatureError
		paramErr            *command.UnsupportedParameterFeatureError
	)
	switch {
	case errors.As(err, &paramErr):
		sb.WriteString(headerStyle.Render("✗ Unsupported parameter"))
		path, param, reason, detail = paramErr.Path, paramErr.Parameter, paramErr.Reason, paramErr.Detail
	case errors.As(err, &featErr):
		sb.WriteString(headerStyle.Render("✗ Command tree rejected"))
		path, param, reason, detail = featErr.Path, featErr.Parameter, featErr.Reason, featErr.Detail
	default:
		sb.WriteString(headerStyle.Render("✗ " + err.Error()))
		sb.WriteString("\n")
		return sb.String()
	}
	sb.WriteString("\n\n")

	if path == "" {
		path = "(root)"
	}
	writeField(&sb, labelStyle, valueStyle, "Command", path)
	if param != "" {
		writeField(&sb, labelStyle, valueStyle, "Parameter", param)
	}
	writeField(&sb, labelStyle, valueStyle, "Reason", reason.String())
	writeField(&sb, labelStyle, valueStyle, "Detail", detail)

	if hint := hintFor(reason); hint != "" {
		sb.WriteString(hintStyle.Render(hint))
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeField(sb *strings.Builder, label, value lipgloss.Style, name, v string) {
	sb.WriteString(label.Render(name + ":"))
	sb.WriteString(" ")
	sb.WriteString(value.Render(v))
	sb.WriteString("\n")
}

func hintFor(r command.Reason) string {
	switch r {
	case command.ReasonSwitch:
		return "Declare the flag as a bool parameter instead of a switch."
	case command.ReasonCollection:
		return "Slash commands take one value per option; split the collection into separate parameters."
	case command.ReasonTooDeep:
		return "Slash commands allow a group inside a command and no deeper."
	case command.ReasonInvalidName:
		return "Names are 1-32 letters, digits, '-' or '_', in any script."
	case command.ReasonTooManyChoices, command.ReasonChoiceTooLong:
		return "Enumerations are sent as choices; trim the members or use a string parameter."
	default:
		return "Adjust the declarations or raise commands.limits in config.json."
	}
}

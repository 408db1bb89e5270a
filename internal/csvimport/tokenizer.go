package csvimport

import "strings"

// ParseLine splits one CSV row on unquoted commas.
//
// A double quote toggles quoted mode and is never copied into the field.
// Escaped quotes ("") are not supported. An empty line yields a single
// empty field. An unterminated quote keeps the rest of the line in the
// last field.
func ParseLine(line string) []string {
	var (
		fields  []string
		current strings.Builder
		inQuote bool
	)

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			fields = append(fields, cleanField(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, cleanField(current.String()))
	return fields
}

func cleanField(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

// SplitLines splits CSV text into lines, dropping blank ones.
func SplitLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

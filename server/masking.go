package server

import "strings"

// sensitiveCommands carry credentials after the command (or mechanism) word.
var sensitiveCommands = map[string]int{
	"LOGIN":        1, // LOGIN <user> [REDACTED]
	"AUTHENTICATE": 1, // AUTHENTICATE <mechanism> [REDACTED]
	"AUTH":         1, // AUTH <mechanism> [REDACTED]
	"PASS":         0, // PASS [REDACTED]
}

// MaskSensitive redacts credentials from a command line before it is logged.
// Tagged (IMAP) and untagged (SMTP, POP3, ManageSieve) lines are handled.
func MaskSensitive(line string) string {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return line
	}

	// The command is the first word, or the second one on tagged protocols.
	for i := 0; i < len(parts) && i < 2; i++ {
		keep, ok := sensitiveCommands[strings.ToUpper(parts[i])]
		if !ok {
			continue
		}
		keepCount := i + 1 + keep
		if len(parts) > keepCount {
			return strings.Join(parts[:keepCount], " ") + " [REDACTED]"
		}
		return line
	}
	return line
}

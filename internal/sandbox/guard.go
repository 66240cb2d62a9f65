package sandbox

import (
	"regexp"
	"strings"
)

// blockedCommand pairs a pattern with the reason reported when it matches.
// The guard runs before dispatch as defense in depth on top of container
// isolation; it targets commands that are destructive even inside an
// isolated workspace or that try to reach the host kernel.
type blockedCommand struct {
	pattern *regexp.Regexp
	reason  string
}

var blockedCommands = []blockedCommand{
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*--no-preserve-root`), "rm with --no-preserve-root"},
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*)?-[a-z]*r[a-z]*\s+(-[a-z]*\s+)*(/|~|\$HOME|\*)\s*($|;|&)`), "recursive deletion of a root-level target"},

	{regexp.MustCompile(`(?i)\bmkfs\b`), "filesystem creation"},
	{regexp.MustCompile(`(?i)\b(fdisk|parted|gdisk|wipefs|blkdiscard|shred)\b`), "disk or device manipulation"},
	{regexp.MustCompile(`(?i)\bdd\s+.*\bof\s*=\s*/dev/`), "dd writing to a device"},
	{regexp.MustCompile(`(?i)>\s*/dev/(sd|hd|nvme|vd|xvd|loop)`), "redirect to a block device"},
	{regexp.MustCompile(`(?i)>\s*/(proc|sys)/`), "write to /proc or /sys"},

	{regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff|halt)\b`), "system power command"},
	{regexp.MustCompile(`(?i)\binit\s+[06]\b`), "init runlevel change"},

	{regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), "fork bomb"},
	{regexp.MustCompile(`(?i)\bwhile\s+true.*\bfork\b`), "fork loop"},

	{regexp.MustCompile(`(?i)\b(curl|wget)\s+[^|]*\|\s*(ba|da)?sh\b`), "remote script piped to shell"},
	{regexp.MustCompile(`(?i)base64\s+(-d|--decode)[^|]*\|\s*(ba|da)?sh\b`), "decoded payload piped to shell"},
}

// GuardCommand checks a command before sandbox dispatch. Returns the
// reason for blocking, empty string if the command is allowed.
func GuardCommand(command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return "empty command is not allowed"
	}
	if strings.ContainsRune(command, '\x00') {
		return "command blocked: null byte in command"
	}

	for _, bc := range blockedCommands {
		if bc.pattern.MatchString(command) {
			return "command blocked: " + bc.reason
		}
	}
	return ""
}

// IsCommandSafe reports whether the command passes the guard.
func IsCommandSafe(command string) bool {
	return GuardCommand(command) == ""
}

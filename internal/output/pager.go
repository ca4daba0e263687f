package output

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ShouldPage returns true if output should be piped through a pager.
// This checks if stdout is a terminal and the content exceeds terminal height.
func ShouldPage(content string, termHeight int) bool {
	if !isTerminal() {
		return false
	}
	lines := strings.Count(content, "\n")
	return lines > termHeight
}

// Page pipes content through the user's preferred pager (PAGER env, or "less -R"
// so colors survive).
func Page(content string) error {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less -R"
	}
	fields := strings.Fields(pager)

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// Print writes content to stdout, paging it when it would not fit the terminal.
func Print(content string) error {
	if ShouldPage(content, TerminalHeight()) {
		if err := Page(content); err == nil {
			return nil
		}
	}
	_, err := os.Stdout.WriteString(content)
	return err
}

// TerminalHeight reads $LINES, defaulting to 40.
func TerminalHeight() int {
	if n, err := strconv.Atoi(os.Getenv("LINES")); err == nil && n > 0 {
		return n
	}
	return 40
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

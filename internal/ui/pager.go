package ui

import (
	"cmp"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls where ToPager writes.
type PagerOptions struct {
	NoPager bool      // --no-pager
	Out     io.Writer // write here instead of stdout; never paged
}

// ToPager writes a listing. On a terminal too short for it, the listing goes
// through $PRIO_PAGER, $PAGER or less. PRIO_NO_PAGER turns paging off.
func ToPager(content string, opts PagerOptions) error {
	if opts.Out != nil {
		_, err := io.WriteString(opts.Out, content)
		return err
	}
	argv := pagerArgv(content, opts.NoPager)
	if len(argv) == 0 {
		_, err := io.WriteString(os.Stdout, content)
		return err
	}

	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 - the pager is the user's choice
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if _, ok := os.LookupEnv("LESS"); !ok {
		// Keep colours, exit when it fits, leave the screen as is.
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}

// pagerArgv returns the pager command line, or nothing when content should
// be written straight to stdout.
func pagerArgv(content string, noPager bool) []string {
	if noPager || os.Getenv("PRIO_NO_PAGER") != "" {
		return nil
	}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	if _, rows, err := term.GetSize(fd); err == nil && lineCount(content) < rows {
		return nil
	}
	return strings.Fields(cmp.Or(os.Getenv("PRIO_PAGER"), os.Getenv("PAGER"), "less"))
}

func lineCount(s string) int {
	n := strings.Count(s, "\n")
	if s != "" && !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

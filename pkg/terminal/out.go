package terminal

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// transcriptWriter is the output of the terminal. Everything written to it
// goes to the screen through a pager and, while a transcript is open, to
// the transcript file too.
type transcriptWriter struct {
	pg *pager

	// transcript, nil when no transcript is open.
	tr      *bufio.Writer
	trFile  io.Closer
	trQuiet bool
}

func newTranscriptWriter(w io.Writer) *transcriptWriter {
	return &transcriptWriter{pg: &pager{out: w}}
}

func (w *transcriptWriter) Write(p []byte) (int, error) {
	n := len(p)
	if !w.trQuiet {
		var err error
		if n, err = w.pg.Write(p); err != nil {
			return n, err
		}
	}
	if w.tr == nil {
		return n, nil
	}
	return w.tr.Write(p)
}

// Echo writes str to the transcript only.
func (w *transcriptWriter) Echo(str string) {
	if w.tr != nil {
		w.tr.WriteString(str)
	}
}

// Flush writes the buffered transcript to its file.
func (w *transcriptWriter) Flush() {
	if w.tr != nil {
		w.tr.Flush()
	}
}

// CloseTranscript stops the transcript, if one is open.
func (w *transcriptWriter) CloseTranscript() error {
	if w.tr == nil {
		return nil
	}
	w.tr.Flush()
	err := w.trFile.Close()
	w.tr, w.trFile, w.trQuiet = nil, nil, false
	return err
}

// TranscribeTo starts a transcript written to fh, closing the previous one.
// When quiet is set the output no longer reaches the screen.
func (w *transcriptWriter) TranscribeTo(fh io.WriteCloser, quiet bool) {
	w.CloseTranscript()
	w.tr = bufio.NewWriter(fh)
	w.trFile = fh
	w.trQuiet = quiet
}

type pagerState uint8

const (
	pagerOff   pagerState = iota // output goes straight to out
	pagerArmed                   // output goes to out, lines are counted
	pagerOn                      // output goes to the pager program
)

// pager writes to out. Once armed it keeps a copy of the output and counts
// its lines. When they no longer fit in the window the copy, and everything
// written after it, is piped to a pager program.
type pager struct {
	state pagerState
	out   io.Writer

	prog   string
	proc   *exec.Cmd
	stdin  io.WriteCloser
	onFail func()

	held      []byte
	atEOL     bool
	line, col int

	rows, cols int
}

func (pg *pager) Write(p []byte) (int, error) {
	switch pg.state {
	case pagerArmed:
		pg.held = append(pg.held, p...)
		if !pg.count(p) {
			if len(p) > 0 {
				pg.atEOL = p[len(p)-1] == '\n'
			}
			return pg.out.Write(p)
		}
		if err := pg.start(); err != nil {
			pg.disarm()
			return pg.out.Write(p)
		}
		if !pg.atEOL {
			io.WriteString(pg.out, "\n")
		}
		io.WriteString(pg.out, "Sending output to pager...\n")
		pg.stdin.Write(pg.held)
		pg.held = nil
		pg.state = pagerOn
		return len(p), nil
	case pagerOn:
		n, err := pg.stdin.Write(p)
		if err != nil && pg.onFail != nil {
			pg.onFail()
			pg.onFail = nil
		}
		return n, err
	default:
		return pg.out.Write(p)
	}
}

// count advances the cursor over p and reports whether the output held so
// far is taller than the window.
func (pg *pager) count(p []byte) bool {
	for _, ch := range p {
		if ch == '\n' || pg.col >= pg.cols {
			pg.line++
			pg.col = 0
			continue
		}
		pg.col++
	}
	return pg.line > pg.rows
}

func (pg *pager) start() error {
	proc := exec.Command(pg.prog)
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr
	stdin, err := proc.StdinPipe()
	if err != nil {
		return err
	}
	if err := proc.Start(); err != nil {
		return err
	}
	pg.proc, pg.stdin = proc, stdin
	return nil
}

// Arm starts counting the output of a command that may not fit in the
// window. Nothing happens unless out is a terminal. onFail is called the
// first time a write to the pager program fails.
func (pg *pager) Arm(onFail func()) {
	if pg.state != pagerOff {
		return
	}
	f, ok := pg.out.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return
	}
	pg.prog = os.Getenv("NVIEW_PAGER")
	if pg.prog == "" {
		if strings.EqualFold(os.Getenv("TERM"), "dumb") {
			return
		}
		if pg.prog = os.Getenv("PAGER"); pg.prog == "" {
			pg.prog = "more"
		}
	}
	pg.state = pagerArmed
	pg.onFail = onFail
	pg.atEOL = true
	pg.line, pg.col = 0, 0
	pg.getWindowSize()
}

// Disarm waits for the pager program, if one was started, and returns to
// writing to out directly.
func (pg *pager) Disarm() {
	if pg.state == pagerOff {
		return
	}
	if pg.proc != nil {
		pg.stdin.Close()
		pg.proc.Wait()
	}
	pg.disarm()
}

func (pg *pager) disarm() {
	pg.state = pagerOff
	pg.held = nil
	pg.proc, pg.stdin = nil, nil
}

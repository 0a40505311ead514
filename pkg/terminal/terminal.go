package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"

	"github.com/go-delve/nativeview/pkg/config"
	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/terminal/starbind"
)

const (
	historyFile                 string = ".nview_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const ansiRed = 31

// Term represents the terminal running nview.
type Term struct {
	sess     *session.Session
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	color    bool
	stdout   *transcriptWriter
	InitFile string

	starlarkEnv *starbind.Env
}

// New returns a new Term.
func New(sess *session.Session, conf *config.Config) *Term {
	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	var w io.Writer = os.Stdout
	if !dumb {
		w = getColorableWriter()
	}
	t := newTerm(sess, conf, w)
	t.color = !dumb && isatty.IsTerminal(os.Stdout.Fd())
	return t
}

func newTerm(sess *session.Session, conf *config.Config, w io.Writer) *Term {
	if conf == nil {
		conf = &config.Config{}
	}

	cmds := DefaultCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	t := &Term{
		sess:   sess,
		conf:   conf,
		prompt: "(nview) ",
		cmds:   cmds,
		stdout: newTranscriptWriter(w),
	}
	t.starlarkEnv = starbind.New(starlarkContext{t}, t.stdout)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
	}
	t.stdout.CloseTranscript()
}

func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		fmt.Fprintf(os.Stderr, "received SIGINT, cancelling script\n")
		t.starlarkEnv.Cancel()
	}
}

// Run reads commands from the user and executes them until the input ends
// or the exit command is called. It returns the exit status of nview.
func (t *Term) Run() (int, error) {
	t.line = liner.NewLiner()
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(t.cmds.Complete)
	t.loadHistory()
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.sourceCommand(t, callContext{}, t.InitFile)
		if isExitRequest(err) {
			return t.handleExit()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err == io.EOF {
			fmt.Fprintln(t.stdout, "exit")
			return t.handleExit()
		}
		if err != nil {
			return 1, errors.New("prompt for input failed")
		}
		t.stdout.Echo(t.prompt + cmdstr + "\n")

		err = t.cmds.Call(cmdstr, t)
		if isExitRequest(err) {
			return t.handleExit()
		}
		if err != nil {
			t.printError(err)
		}
		t.stdout.Flush()
	}
}

func isExitRequest(err error) bool {
	_, ok := err.(ExitRequestError)
	return ok
}

// loadHistory reads the command history, creating the history file when
// it does not exist.
func (t *Term) loadHistory() {
	path, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load history file: %v.\n", err)
		return
	}
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open history file: %v. History will not be saved for this session.\n", err)
		return
	}
	defer f.Close()
	t.line.ReadHistory(f)
}

func (t *Term) saveHistory() {
	path, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error saving history file:", err)
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := t.line.WriteHistory(f); err != nil {
		fmt.Fprintln(os.Stderr, "readline history error:", err)
	}
}

// Call executes a command line as an action of the session.
func (t *Term) Call(cmdstr string) error {
	return t.cmds.Call(cmdstr, t)
}

// ExecuteScript runs the starlark script at path as a single action and
// calls its main function, if it has one, with args.
func (t *Term) ExecuteScript(path string, args []interface{}) error {
	_, err := t.starlarkEnv.Execute(path, nil, "main", args)
	return err
}

// printError prints the error of a failed command.
func (t *Term) printError(err error) {
	logflags.SessionLogger().Debugf("command failed: %v", err)
	fmt.Fprintf(os.Stderr, "%s\n", t.highlight(ansiRed, fmt.Sprintf("Command failed: %s", err)))
	t.stdout.Echo(fmt.Sprintf("Command failed: %s\n", err))
}

// highlight surrounds str with the escape codes of color when the output
// is a terminal.
func (t *Term) highlight(color int, str string) string {
	if !t.color {
		return str
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + str + terminalResetEscapeCode
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	t.saveHistory()
	t.sess.Close()
	return 0, nil
}

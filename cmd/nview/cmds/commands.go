package cmds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-delve/nativeview/cmd/nview/cmds/helphelpers"
	"github.com/go-delve/nativeview/pkg/config"
	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/snapshot"
	_ "github.com/go-delve/nativeview/pkg/stdtypes"
	"github.com/go-delve/nativeview/pkg/symbols"
	"github.com/go-delve/nativeview/pkg/terminal"
	"github.com/go-delve/nativeview/pkg/version"
	"github.com/spf13/cobra"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// symbolsFile is the executable whose debug info describes the
	// snapshots, when they do not declare their own types.
	symbolsFile string
	// staticBase is added to the address of the globals read from symbolsFile.
	staticBase uint64

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const nviewCommandLongDesc = `nview inspects the memory of native processes.

nview opens one or more memory snapshots and lets you print their variables,
recognize standard library types by their layout and read them through
user type adapters, either interactively or from starlark scripts.

Pass arguments to the main function of a script using ` + "`--`" + `, for example:

` + "`nview run dump.star core.yml -- out.txt`"

// New returns an initialized command tree.
func New(docCall bool) *cobra.Command {
	// Config setup and load.
	var err error
	conf, err = config.LoadConfig()
	if err != nil && !docCall {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}

	// Main nview root command.
	rootCommand = &cobra.Command{
		Use:   "nview",
		Short: "nview is an inspector for the memory of native programs.",
		Long:  nviewCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'nview help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'nview help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal.")
	rootCommand.PersistentFlags().StringVar(&symbolsFile, "symbols", "", "Executable to read types and globals from, instead of the snapshot.")
	rootCommand.PersistentFlags().Uint64Var(&staticBase, "static-base", 0, "Load address of the executable passed to --symbols.")

	// 'open' subcommand.
	openCommand := &cobra.Command{
		Use:   "open <snapshot>...",
		Short: "Open memory snapshots and begin an interactive session.",
		Long: `Open memory snapshots and begin an interactive session.

Every snapshot is attached as a separate process, named after the snapshot
file. The first one becomes the current process, use the 'process' command
to switch between them.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a snapshot")
			}
			return nil
		},
		Run: openCmd,
	}
	rootCommand.AddCommand(openCommand)

	// 'run' subcommand.
	runCommand := &cobra.Command{
		Use:   "run <script.star> <snapshot>... [-- args]",
		Short: "Run a starlark script against memory snapshots.",
		Long: `Run a starlark script against memory snapshots.

The script is executed as a single action. If it defines a main function,
main is called with the arguments that follow '--'.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if n := cmd.ArgsLenAtDash(); n >= 0 && n < 2 || n < 0 && len(args) < 2 {
				return errors.New("you must provide a script and a snapshot")
			}
			return nil
		},
		RunE: runCmd,
	}
	rootCommand.AddCommand(runCommand)

	// 'cast' subcommand.
	castCommand := &cobra.Command{
		Use:   "cast <snapshot> <user type> <expression>",
		Short: "Print an expression of a snapshot as a user type.",
		Args:  cobra.MinimumNArgs(3),
		RunE:  castCmd,
	}
	rootCommand.AddCommand(castCommand)

	// 'version' subcommand.
	var buildInfo bool
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nview\n%s\n", version.NviewVersion)
			if buildInfo {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}
	versionCommand.Flags().BoolVarP(&buildInfo, "verbose", "v", false, "print build info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	selector	Log the layout selected for every recognized type
	cache		Log cache invalidations
	session		Log actions, state syncs and metadata reloads
	symbols		Log symbol loading
	script		Log starlark script execution

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func openCmd(cmd *cobra.Command, args []string) {
	os.Exit(execute(args))
}

func execute(snapshots []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	sess, err := openSession(conf, snapshots)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := terminal.New(sess, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}

func runCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	files, scriptArgs := splitArgs(cmd, args)
	sess, err := openSession(conf, files[1:])
	if err != nil {
		return err
	}
	defer sess.Close()

	term := terminal.New(sess, conf)
	defer term.Close()

	mainArgs := make([]interface{}, len(scriptArgs))
	for i := range scriptArgs {
		mainArgs[i] = scriptArgs[i]
	}
	return term.ExecuteScript(files[0], mainArgs)
}

func castCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	defer logflags.Close()

	sess, err := openSession(conf, args[:1])
	if err != nil {
		return err
	}
	defer sess.Close()

	term := terminal.New(sess, conf)
	defer term.Close()
	return term.Call("cast " + strings.Join(args[1:], " "))
}

// splitArgs separates the arguments that precede '--' from the ones that
// follow it.
func splitArgs(cmd *cobra.Command, args []string) ([]string, []string) {
	if cmd.ArgsLenAtDash() >= 0 {
		return args[:cmd.ArgsLenAtDash()], args[cmd.ArgsLenAtDash():]
	}
	return args, []string{}
}

// openSession attaches every snapshot to a new session. Types and globals
// are read from the executable named by --symbols when it is set and from
// the snapshot otherwise.
func openSession(conf *config.Config, snapshots []string) (*session.Session, error) {
	sess := session.New(conf)
	seen := make(map[string]int)
	for _, path := range snapshots {
		snap, err := snapshot.Load(path)
		if err != nil {
			sess.Close()
			return nil, err
		}
		loader := symbols.FromSnapshot(snap)
		if symbolsFile != "" {
			var searchPaths []string
			if conf != nil {
				searchPaths = conf.SymbolSearchPaths
			}
			exe, err := symbols.Find(symbolsFile, searchPaths)
			if err != nil {
				sess.Close()
				return nil, err
			}
			loader = symbols.FromExecutable(exe, staticBase)
		}
		table, err := symbols.NewTable(loader)
		if err != nil {
			sess.Close()
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		id := processID(path, seen)
		if _, err := sess.Attach(id, snap, table); err != nil {
			sess.Close()
			return nil, err
		}
		logflags.SessionLogger().Debugf("attached %s as process %s", path, id)
	}
	return sess, nil
}

// processID names a process after its snapshot file, without extension.
// Snapshots with the same name are numbered.
func processID(path string, seen map[string]int) string {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s.%d", id, n)
	}
	return id
}

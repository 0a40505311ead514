// Package terminal implements functions for responding to user
// input and dispatching to the session of the attached processes.
package terminal

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/usertype"
)

type callContext struct {
	// Process is the process the command applies to, the current process
	// when nil.
	Process *session.Process
	// InAction is set when the command is called while an action is
	// already running, for example by a script.
	InAction bool
}

// process returns the process the command applies to.
func (ctx callContext) process(t *Term) (*session.Process, error) {
	if ctx.Process != nil {
		return ctx.Process, nil
	}
	return t.sess.Current()
}

type cmdfunc func(t *Term, ctx callContext, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	// noAction commands are not wrapped in an action, they start their
	// own actions when they need them.
	noAction bool
	helpMsg  string
	cmdFn    cmdfunc
}

func (c command) match(cmdstr string) bool {
	return slices.Contains(c.aliases, cmdstr)
}

// Commands represents the commands of the nview terminal.
type Commands struct {
	cmds  []command
	names *trie.Trie
}

// DefaultCommands returns a Commands struct with default commands defined.
func DefaultCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, noAction: true, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"print", "p"}, group: dataCmds, cmdFn: printVar, helpMsg: `Evaluate an expression.

	print <expression>

The expression is the name of a global variable followed by any number of
member accesses (.member or ->member) and array indexes ([n]). A leading *
dereferences the result. The value of type T at address A is written (T)(A):

	print s._Mysize
	print (char[5])(0x1000)
	print *l._Bx._Ptr`},
		{aliases: []string{"whatis"}, group: dataCmds, cmdFn: whatisCommand, helpMsg: `Prints type of an expression.

	whatis <expression>

Besides the type of the expression, whatis lists its members and the user
types it can be casted to.`},
		{aliases: []string{"cast", "c"}, group: dataCmds, cmdFn: castCommand, helpMsg: `Casts an expression to a user type and prints its properties.

	cast <user type> <expression>

The available user types are listed by "cast -list".`},
		{aliases: []string{"vars"}, group: dataCmds, cmdFn: vars, helpMsg: `Print global variables.

	vars [<regex>]

If regex is specified only the global variables with a name matching it will be returned.`},
		{aliases: []string{"types"}, group: dataCmds, cmdFn: types, helpMsg: `Print list of types

	types [<regex>]

If regex is specified only the types matching it will be returned.`},
		{aliases: []string{"examinemem", "x"}, group: dataCmds, cmdFn: examineMemoryCmd, helpMsg: `Examine raw memory at the given address.

	examinemem [-count|-len <count>] <address|expression>

Count defaults to 16. If an expression is given the memory of its value is
examined and count defaults to the size of its type.`},
		{aliases: []string{"write"}, group: dataCmds, cmdFn: writeCommand, helpMsg: `Writes to the memory of the process.

	write [-x] <address> <data>

Data is written as text, with -x it is decoded from hexadecimal.

	write 0x1000 "jello"
	write -x 0x1000 6a656c6c6f

Values cached by user types are discarded once the command completes.`},
		{aliases: []string{"reload"}, group: cacheCmds, cmdFn: reloadCommand, helpMsg: `Reloads the symbols of all processes.

	reload

Discards every cached value, including the layouts matched to types and
the results of casts.`},
		{aliases: []string{"caching"}, group: cacheCmds, cmdFn: cachingCommand, helpMsg: `Shows or changes caching of user type values.

	caching
	caching on|off
	caching -casts on|off

Without -casts caching of the members of user types is changed, with -casts
caching of the results of casts is changed.`},
		{aliases: []string{"cache"}, group: cacheCmds, cmdFn: cacheCommand, helpMsg: `Shows the cache of a process.

	cache
	cache sync
	cache clear

"cache sync" discards the values computed for the current state of the
process, "cache clear" also discards the values computed from its symbols.`},
		{aliases: []string{"process", "proc"}, group: processCmds, cmdFn: c.processCommand, helpMsg: `Shows, switches or runs a command on a process.

	process
	process <id>
	process <id> <command>

Without arguments the attached processes are listed, the current one is
marked with *. With an id the current process is switched, unless a
command follows, in which case the command is run on that process.`},
		{aliases: []string{"source"}, cmdFn: c.sourceCommand, noAction: true, helpMsg: `Executes a file containing a list of nview commands

	source <path>

If path ends with the .star extension it will be interpreted as a starlark script.
If path is a single '-' character an interactive starlark interpreter will start instead.
Type 'exit' to exit.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"transcript"}, cmdFn: transcript, noAction: true, helpMsg: `Appends command output to a file.

	transcript [-t] [-x] <output file>
	transcript -off

Output of nview's command is appended to the specified output file. If '-t' is specified and the output file exists it is truncated. If '-x' is specified output to stdout is suppressed instead.

Using the -off option disables the transcript.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, noAction: true, helpMsg: `Exit nview.

	exit`},
	}

	sort.Slice(c.cmds, func(i, j int) bool { return c.cmds[i].aliases[0] < c.cmds[j].aliases[0] })
	for i := range c.cmds {
		c.cmds[i].builtinAliases = slices.Clone(c.cmds[i].aliases)
	}
	c.updateNames()
	return c
}

// Register adds the command cmdstr, replacing the command with that name
// if there is one.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}

	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, builtinAliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
	c.names.Add(cmdstr, nil)
}

func (c *Commands) find(cmdstr string) *command {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			return &c.cmds[i]
		}
	}
	return nil
}

// CallWithContext takes a command and a context that command should be
// executed in. Unless ctx.InAction is set the command runs as an action of
// the session.
func (c *Commands) CallWithContext(cmdstr string, t *Term, ctx callContext) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	if cmdname == "" {
		return nil
	}
	cmd := c.find(cmdname)
	if cmd == nil {
		return noCmdError
	}
	if cmd.noAction || ctx.InAction {
		return cmd.cmdFn(t, ctx, args)
	}
	cmdFn := cmd.cmdFn
	return t.sess.ExecuteAction(func() error {
		ctx.InAction = true
		return cmdFn(t, ctx, args)
	})
}

// Call executes cmdstr as an action of the session.
func (c *Commands) Call(cmdstr string, t *Term) error {
	return c.CallWithContext(cmdstr, t, callContext{})
}

// Merge replaces the user defined aliases of every command with the ones
// in aliases, keyed by command name.
func (c *Commands) Merge(aliases map[string][]string) {
	for i := range c.cmds {
		cmd := &c.cmds[i]
		cmd.aliases = append(slices.Clip(cmd.builtinAliases), aliases[cmd.builtinAliases[0]]...)
	}
	c.updateNames()
}

// updateNames rebuilds the trie used to complete command names.
func (c *Commands) updateNames() {
	c.names = trie.New()
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			c.names.Add(alias, nil)
		}
	}
}

// Complete returns the commands whose name starts with line.
func (c *Commands) Complete(line string) []string {
	if strings.ContainsRune(line, ' ') {
		return nil
	}
	r := c.names.PrefixSearch(strings.ToLower(line))
	sort.Strings(r)
	return r
}

var noCmdError = errors.New("command not available")

func (c *Commands) help(t *Term, ctx callContext, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits args into words, handling quotes the way a shell does.
func splitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal commandline '%s'", args)
	}
	return v[0], nil
}

func split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

func printVar(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("not enough arguments")
	}
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	v, err := evalExpr(p, args)
	if err != nil {
		return err
	}
	return t.printVariable(v, "", 0)
}

// printVariable prints v, the members of structs are printed on separate
// lines, nested structs are expanded up to maxVariableRecurse levels.
func (t *Term) printVariable(v *native.Variable, indent string, depth int) error {
	switch v.RealType.Kind {
	case native.Struct, native.Union:
		if depth > maxVariableRecurse {
			fmt.Fprintf(t.stdout, "%s {...}\n", v.TypeString())
			return nil
		}
		fmt.Fprintf(t.stdout, "%s {\n", v.TypeString())
		for _, name := range memberNames(v.RealType) {
			f, err := v.StructMember(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(t.stdout, "%s\t%s: ", indent, name)
			if err := t.printVariable(f, indent+"\t", depth+1); err != nil {
				return err
			}
		}
		fmt.Fprintf(t.stdout, "%s}\n", indent)
	default:
		fmt.Fprintln(t.stdout, t.truncate(v.String()))
	}
	return nil
}

const maxVariableRecurse = 1

// memberNames returns the names of the members of typ in declaration
// order, members of anonymous members included.
func memberNames(typ *native.Type) []string {
	var r []string
	for _, f := range typ.Members {
		if f.Name == "" {
			if f.Type != nil {
				r = append(r, memberNames(f.Type)...)
			}
			continue
		}
		r = append(r, f.Name)
	}
	return r
}

// truncate shortens s to the maximum string length of the configuration.
func (t *Term) truncate(s string) string {
	n := t.conf.StringLen()
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func whatisCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("not enough arguments")
	}
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	v, err := evalExpr(p, args)
	if err != nil {
		return err
	}
	typ := v.RealType
	fmt.Fprintln(t.stdout, v.TypeString())
	fmt.Fprintf(t.stdout, "Kind: %s, size: %d\n", typ.Kind, typ.ByteSize)
	switch typ.Kind {
	case native.Struct, native.Union:
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 1, ' ', 0)
		for _, f := range typ.Members {
			name := f.Name
			if name == "" {
				name = "<anonymous>"
			}
			fmt.Fprintf(w, "\t%#x\t%s\t%s\n", f.Offset, name, f.Type)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	case native.Pointer, native.Array:
		fmt.Fprintf(t.stdout, "Element type: %s\n", typ.Elem)
	}

	var matches []string
	for _, name := range t.sess.UserTypes() {
		_, err := p.CastValue(v, name)
		switch usertype.Classify(err) {
		case usertype.TypeMismatch:
		case usertype.NoError:
			matches = append(matches, name)
		default:
			return err
		}
	}
	if len(matches) > 0 {
		fmt.Fprintf(t.stdout, "User types: %s\n", strings.Join(matches, ", "))
	}
	return nil
}

func castCommand(t *Term, ctx callContext, args string) error {
	if args == "-list" {
		for _, name := range t.sess.UserTypes() {
			fmt.Fprintln(t.stdout, name)
		}
		return nil
	}
	v := split2PartsBySpace(args)
	if len(v) != 2 || v[0] == "" || v[1] == "" {
		return fmt.Errorf("not enough arguments")
	}
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	val, err := evalExpr(p, v[1])
	if err != nil {
		return err
	}
	a, err := p.CastValue(val, v[0])
	if err != nil {
		return err
	}
	return t.printAdapter(v[1], a)
}

// printAdapter prints every property of a. Properties that can not be read
// fail the command.
func (t *Term) printAdapter(expr string, a usertype.Adapter) error {
	props := make([]interface{}, len(a.PropertyNames()))
	for i, name := range a.PropertyNames() {
		var err error
		props[i], err = a.Property(name)
		if err != nil {
			return err
		}
	}
	if s, ok := a.(fmt.Stringer); ok {
		fmt.Fprintf(t.stdout, "%s = (%s) %s\n", expr, a.UserType(), t.truncate(s.String()))
	} else {
		fmt.Fprintf(t.stdout, "%s = (%s)\n", expr, a.UserType())
	}
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for i, name := range a.PropertyNames() {
		switch prop := props[i].(type) {
		case string:
			fmt.Fprintf(w, "\t%s\t= %s\n", name, t.truncate(strconv.Quote(prop)))
		case *native.Variable:
			fmt.Fprintf(w, "\t%s\t= %s\n", name, t.truncate(prop.String()))
		default:
			fmt.Fprintf(w, "\t%s\t= %v\n", name, prop)
		}
	}
	return w.Flush()
}

func filterNames(names []string, filter string) ([]string, error) {
	if filter == "" {
		return names, nil
	}
	reg, err := regexp.Compile(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid filter argument: %s", err.Error())
	}
	r := names[:0:0]
	for _, name := range names {
		if reg.MatchString(name) {
			r = append(r, name)
		}
	}
	return r, nil
}

func vars(t *Term, ctx callContext, args string) error {
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	globals := p.Symbols().Globals()
	names := make([]string, len(globals))
	for i := range globals {
		names[i] = globals[i].Name
	}
	names, err = filterNames(names, args)
	if err != nil {
		return err
	}
	t.stdout.pg.Arm(nil)
	defer t.stdout.pg.Disarm()
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	for _, name := range names {
		g, err := p.Symbols().Global(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t@ %#x\n", g.Name, g.Type, g.Addr)
	}
	return w.Flush()
}

func types(t *Term, ctx callContext, args string) error {
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	names, err := filterNames(p.Symbols().TypeNames(), args)
	if err != nil {
		return err
	}
	t.stdout.pg.Arm(nil)
	defer t.stdout.pg.Disarm()
	for _, name := range names {
		fmt.Fprintln(t.stdout, name)
	}
	return nil
}

func examineMemoryCmd(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}

	count := -1
	var expr string
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case "-count", "-len":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -count/-len")
			}
			count, err = strconv.Atoi(v[i])
			if err != nil || count <= 0 {
				return fmt.Errorf("count/len must be a positive integer")
			}
		default:
			if i != len(v)-1 {
				return fmt.Errorf("unknown option %q", v[i])
			}
			expr = v[i]
		}
	}
	if expr == "" {
		return fmt.Errorf("no address specified")
	}

	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	address, err := strconv.ParseUint(expr, 0, 64)
	if err != nil {
		val, err := evalExpr(p, expr)
		if err != nil {
			return err
		}
		address = val.Address()
		if count < 0 {
			count = int(val.RealType.ByteSize)
		}
	}
	if count < 0 {
		count = 16
	}
	if count > maxExamineMemory {
		return fmt.Errorf("read memory range (count) must be less than or equal to %d bytes", maxExamineMemory)
	}

	mem := make([]byte, count)
	n, err := p.Memory().ReadMemory(mem, address)
	if err != nil {
		return &native.MemoryError{Addr: address, Size: count, Err: err}
	}
	fmt.Fprint(t.stdout, prettyExamineMemory(address, mem[:n]))
	return nil
}

const maxExamineMemory = 1000

// prettyExamineMemory formats mem, read at address, 16 bytes per line.
// Addresses are padded to the width of the last one, at least 8 digits.
func prettyExamineMemory(address uint64, mem []byte) string {
	width := len(strconv.FormatUint(address+uint64(len(mem)), 16))
	if width < 8 {
		width = 8
	}
	var b strings.Builder
	for i := 0; i < len(mem); i += 16 {
		end := i + 16
		if end > len(mem) {
			end = len(mem)
		}
		fmt.Fprintf(&b, "0x%0*x: ", width, address+uint64(i))
		for j := i; j < end; j++ {
			fmt.Fprintf(&b, " %02x", mem[j])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeCommand(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	isHex := false
	if len(v) > 0 && v[0] == "-x" {
		isHex = true
		v = v[1:]
	}
	if len(v) != 2 {
		return fmt.Errorf("wrong number of arguments")
	}
	address, err := strconv.ParseUint(v[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %v", v[0], err)
	}
	data := []byte(v[1])
	if isHex {
		data, err = hex.DecodeString(v[1])
		if err != nil {
			return err
		}
	}
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	n, err := p.WriteMemory(address, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%d bytes written at %#x\n", n, address)
	return nil
}

func reloadCommand(t *Term, ctx callContext, args string) error {
	if args != "" {
		return fmt.Errorf("too many arguments")
	}
	if err := t.sess.ReloadMetadata(); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "Symbols of %d processes reloaded\n", len(t.sess.Processes()))
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true":
		return true, nil
	case "off", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func cachingCommand(t *Term, ctx callContext, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	switch len(v) {
	case 0:
		fmt.Fprintf(t.stdout, "Caching of user type members: %s\n", onOff(t.sess.CachingEnabled()))
		fmt.Fprintf(t.stdout, "Caching of casts: %s\n", onOff(t.sess.UserCastCachingEnabled()))
		return nil
	case 1:
		enabled, err := parseOnOff(v[0])
		if err != nil {
			return err
		}
		t.sess.SetCachingEnabled(enabled)
		return nil
	case 2:
		if v[0] != "-casts" {
			return fmt.Errorf("unknown option %q", v[0])
		}
		enabled, err := parseOnOff(v[1])
		if err != nil {
			return err
		}
		t.sess.SetUserCastCachingEnabled(enabled)
		return nil
	default:
		return fmt.Errorf("too many arguments")
	}
}

func cacheCommand(t *Term, ctx callContext, args string) error {
	p, err := ctx.process(t)
	if err != nil {
		return err
	}
	b := p.Cache()
	switch args {
	case "":
		stats := b.Stats()
		fmt.Fprintf(t.stdout, "Process %s\n", p.ID())
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 1, ' ', 0)
		for scope, n := range stats.Registered {
			fmt.Fprintf(w, "\t%s entries:\t%d\n", cache.Scope(scope), n)
		}
		fmt.Fprintf(w, "\tcached casts:\t%d\n", p.CachedCasts())
		fmt.Fprintf(w, "\tstate syncs:\t%d\n", stats.StateSyncs)
		fmt.Fprintf(w, "\tmetadata clears:\t%d\n", stats.MetadataClears)
		return w.Flush()
	case "sync":
		p.SyncState()
		return nil
	case "clear":
		b.ClearMetadata()
		return nil
	default:
		return fmt.Errorf("unknown argument %q", args)
	}
}

func (c *Commands) processCommand(t *Term, ctx callContext, args string) error {
	if args == "" {
		cur, _ := t.sess.Current()
		for _, p := range t.sess.Processes() {
			prefix := "  "
			if p == cur {
				prefix = "* "
			}
			fmt.Fprintf(t.stdout, "%sProcess %s (%s)\n", prefix, p.ID(), p.Symbols().Name())
		}
		return nil
	}
	v := split2PartsBySpace(args)
	if len(v) == 1 {
		if err := t.sess.SetCurrent(v[0]); err != nil {
			return err
		}
		fmt.Fprintf(t.stdout, "Switched to process %s\n", v[0])
		return nil
	}
	p, err := t.sess.Process(v[0])
	if err != nil {
		return err
	}
	ctx.Process = p
	return c.CallWithContext(v[1], t, ctx)
}

func (c *Commands) sourceCommand(t *Term, ctx callContext, args string) error {
	if len(args) == 0 {
		return fmt.Errorf("wrong number of arguments: source <filename>")
	}
	if ctx.InAction {
		return errors.New("source can not be called by another command")
	}

	if args == "-" {
		return t.starlarkEnv.REPL()
	}

	if filepath.Ext(args) == ".star" {
		_, err := t.starlarkEnv.Execute(args, nil, "main", nil)
		return err
	}

	return c.executeFile(t, args)
}

// ExitRequestError is returned by the exit command.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args string) error {
	return ExitRequestError{}
}

// executeFile executes every line of the file name as a command.
func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()
	return c.executeLines(t, name, fh)
}

func (c *Commands) executeLines(t *Term, name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		err := c.Call(line, t)
		if isExitRequest(err) {
			return err
		}
		if err != nil {
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

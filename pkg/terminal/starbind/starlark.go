package starbind

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/session"
)

const (
	commandBuiltinName        = "nview_command"
	varBuiltinName            = "var"
	valueBuiltinName          = "value"
	castBuiltinName           = "cast"
	syncStateBuiltinName      = "sync_state"
	reloadMetadataBuiltinName = "reload_metadata"
	setCachingBuiltinName     = "set_caching"
	cacheStatsBuiltinName     = "cache_stats"
	writeMemoryBuiltinName    = "write_memory"
	processesBuiltinName      = "processes"
	setProcessBuiltinName     = "set_process"
	userTypesBuiltinName      = "user_types"
	readFileBuiltinName       = "read_file"
	writeFileBuiltinName      = "write_file"
	helpBuiltinName           = "help"
	commandPrefix             = "command_"
	contextName               = "nview_context"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Context gives scripts access to the session and to the terminal commands.
type Context interface {
	Session() *session.Session
	RegisterCommand(name, helpMsg string, cmdfn func(args string) error)
	// CallCommand runs a command as part of the current action.
	CallCommand(cmdstr string) error
}

// Env holds the builtins and the exported globals shared by scripts.
type Env struct {
	env       starlark.StringDict
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	ctx Context
	out EchoWriter
	log logflags.Logger
}

type builtinFn func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// New returns an environment whose builtins operate on the session of ctx
// and print to out.
func New(ctx Context, out EchoWriter) *Env {
	env := &Env{ctx: ctx, out: out, log: logflags.ScriptLogger()}

	starlark.Universe["time"] = startime.Module

	env.env = starlark.StringDict{}
	doc := map[string]string{}

	builtin := func(name, args, descr string, fn builtinFn) {
		doc[name] = name + args + "\n\n" + name + " " + descr
		env.env[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := isCancelled(thread); err != nil {
				return starlark.None, err
			}
			v, err := fn(thread, args, kwargs)
			if err != nil {
				return nil, decorateError(thread, err)
			}
			return v, nil
		})
	}

	builtin(commandBuiltinName, "(Command)", "runs a terminal command.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		argstrs := make([]string, len(args))
		for i := range args {
			a, ok := args[i].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("argument of %s is not a string", commandBuiltinName)
			}
			argstrs[i] = string(a)
		}
		return starlark.None, env.ctx.CallCommand(strings.Join(argstrs, " "))
	})

	builtin(varBuiltinName, "(Name)", "returns the global variable called Name of the current process.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(varBuiltinName, args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		p, err := env.ctx.Session().Current()
		if err != nil {
			return nil, err
		}
		v, err := p.Variable(name)
		if err != nil {
			return nil, err
		}
		return env.variableToStarlarkValue(v), nil
	})

	builtin(valueBuiltinName, "(Addr, Type)", "returns the value of type Type stored at Addr in the current process.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addrv starlark.Value
		var typ string
		if err := starlark.UnpackArgs(valueBuiltinName, args, kwargs, "addr", &addrv, "type", &typ); err != nil {
			return nil, err
		}
		addr, err := toAddress(addrv)
		if err != nil {
			return nil, err
		}
		p, err := env.ctx.Session().Current()
		if err != nil {
			return nil, err
		}
		v, err := p.NewVariable(addr, typ)
		if err != nil {
			return nil, err
		}
		return env.variableToStarlarkValue(v), nil
	})

	builtin(castBuiltinName, "(Value, UserType)", "casts Value, a variable or the name of a global variable, to UserType.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var val starlark.Value
		var userType string
		if err := starlark.UnpackArgs(castBuiltinName, args, kwargs, "value", &val, "user_type", &userType); err != nil {
			return nil, err
		}
		p, err := env.ctx.Session().Current()
		if err != nil {
			return nil, err
		}
		var v variableAsStarlarkValue
		switch val := val.(type) {
		case starlark.String:
			nv, err := p.Variable(string(val))
			if err != nil {
				return nil, err
			}
			v.v = nv
		case variableAsStarlarkValue:
			v = val
		default:
			return nil, fmt.Errorf("can not cast %s to %s", val.Type(), userType)
		}
		a, err := p.CastValue(v.v, userType)
		if err != nil {
			return nil, err
		}
		return adapterAsStarlarkValue{a, env}, nil
	})

	builtin(syncStateBuiltinName, "()", "discards the values cached for the current state of all processes.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(syncStateBuiltinName, args, kwargs); err != nil {
			return nil, err
		}
		env.ctx.Session().SyncState()
		return starlark.None, nil
	})

	builtin(reloadMetadataBuiltinName, "()", "reloads the symbols of all processes.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackArgs(reloadMetadataBuiltinName, args, kwargs); err != nil {
			return nil, err
		}
		return starlark.None, env.ctx.Session().ReloadMetadata()
	})

	builtin(setCachingBuiltinName, "(Enabled, UserCasts=None)", "enables or disables caching of values and, if UserCasts is specified, of user type casts.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var enabled bool
		var userCasts starlark.Value = starlark.None
		if err := starlark.UnpackArgs(setCachingBuiltinName, args, kwargs, "enabled", &enabled, "user_casts?", &userCasts); err != nil {
			return nil, err
		}
		s := env.ctx.Session()
		s.SetCachingEnabled(enabled)
		if userCasts != starlark.None {
			s.SetUserCastCachingEnabled(bool(userCasts.Truth()))
		}
		return starlark.None, nil
	})

	builtin(cacheStatsBuiltinName, "()", "returns the cache statistics of the current process.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		p, err := env.ctx.Session().Current()
		if err != nil {
			return nil, err
		}
		return env.toStarlark(p.Cache().Stats()), nil
	})

	builtin(writeMemoryBuiltinName, "(Addr, Data)", "writes Data, a string or a list of bytes, at Addr in the current process.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var addrv, data starlark.Value
		if err := starlark.UnpackArgs(writeMemoryBuiltinName, args, kwargs, "addr", &addrv, "data", &data); err != nil {
			return nil, err
		}
		addr, err := toAddress(addrv)
		if err != nil {
			return nil, err
		}
		var buf []byte
		switch data := data.(type) {
		case starlark.String:
			buf = []byte(string(data))
		case starlark.Bytes:
			buf = []byte(string(data))
		default:
			if err := fromStarlark(data, &buf, "data"); err != nil {
				return nil, err
			}
		}
		p, err := env.ctx.Session().Current()
		if err != nil {
			return nil, err
		}
		n, err := p.WriteMemory(addr, buf)
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt(n), nil
	})

	builtin(processesBuiltinName, "()", "returns the identifiers of the attached processes.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		procs := env.ctx.Session().Processes()
		ids := make([]string, len(procs))
		for i := range procs {
			ids[i] = procs[i].ID()
		}
		return env.toStarlark(ids), nil
	})

	builtin(setProcessBuiltinName, "(ID)", "makes ID the current process.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var id string
		if err := starlark.UnpackArgs(setProcessBuiltinName, args, kwargs, "id", &id); err != nil {
			return nil, err
		}
		return starlark.None, env.ctx.Session().SetCurrent(id)
	})

	builtin(userTypesBuiltinName, "()", "returns the names of the user types values can be casted to.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return env.toStarlark(env.ctx.Session().UserTypes()), nil
	})

	builtin(readFileBuiltinName, "(Path)", "reads a file.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("wrong number of arguments")
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("argument of read_file was not a string")
		}
		buf, err := os.ReadFile(string(path))
		if err != nil {
			return nil, err
		}
		return starlark.String(string(buf)), nil
	})

	builtin(writeFileBuiltinName, "(Path, Text)", "writes text to the specified file.", func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("wrong number of arguments")
		}
		path, ok := args[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("first argument of write_file was not a string")
		}
		text := args[1].String()
		if s, ok := args[1].(starlark.String); ok {
			text = string(s)
		}
		return starlark.None, os.WriteFile(string(path), []byte(text), 0o640)
	})

	env.env[helpBuiltinName] = starlark.NewBuiltin(helpBuiltinName, env.help(doc))
	doc[helpBuiltinName] = helpBuiltinName + "(Object=None)\n\n" + helpBuiltinName + " lists the builtins or prints the documentation of Object."

	return env
}

// help returns the help builtin, doc maps the name of every builtin to its
// documentation.
func (env *Env) help(doc map[string]string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var obj starlark.Value = starlark.None
		if err := starlark.UnpackPositionalArgs(helpBuiltinName, args, kwargs, 0, &obj); err != nil {
			return nil, err
		}
		switch obj := obj.(type) {
		case starlark.NoneType:
			var names []string
			for name, v := range env.env {
				if _, ok := v.(*starlark.Builtin); ok {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			fmt.Fprintf(env.out, "Builtins:\n\t%s\n", strings.Join(names, "\n\t"))
		case *starlark.Builtin:
			if d, ok := doc[obj.Name()]; ok {
				fmt.Fprintln(env.out, d)
			} else {
				fmt.Fprintf(env.out, "%s is not documented\n", obj.Name())
			}
		case *starlark.Function:
			fmt.Fprintf(env.out, "function %s\n", obj.Name())
			if d := obj.Doc(); d != "" {
				fmt.Fprintln(env.out, d)
			}
		default:
			fmt.Fprintf(env.out, "no help for %s\n", obj.Type())
		}
		return starlark.None, nil
	}
}

// Execute runs a script as a single action of the session. The script is
// read from source, a string, a []byte or an io.Reader, or from path when
// source is nil. If the script defines a function called mainFnName it is
// then called with args.
func (env *Env) Execute(path string, source interface{}, mainFnName string, args []interface{}) (v starlark.Value, err error) {
	v = starlark.None
	err = env.ctx.Session().ExecuteAction(func() error {
		var err error
		v, err = env.execute(path, source, mainFnName, args)
		return err
	})
	return v, err
}

func (env *Env) execute(path string, source interface{}, mainFnName string, args []interface{}) (_ starlark.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing starlark script: %v", r)
			env.log.Errorf("%v\n%s", err, debug.Stack())
		}
	}()

	if logflags.Script() {
		env.log.WithField("path", path).Debug("executing script")
	}

	thread := env.newThread()
	globals, err := starlark.ExecFile(thread, path, source, env.env)
	if err != nil {
		return starlark.None, err
	}
	env.exportGlobals(globals)
	return env.callMain(thread, globals, mainFnName, args)
}

// exportGlobals makes the globals of a script whose name is capitalized
// visible to the scripts that run after it. Functions called command_NAME
// become the terminal command NAME.
func (env *Env) exportGlobals(globals starlark.StringDict) {
	for _, name := range globals.Keys() {
		val := globals[name]
		if cmd, ok := strings.CutPrefix(name, commandPrefix); ok {
			env.createCommand(cmd, val)
			continue
		}
		if r, _ := utf8.DecodeRuneInString(name); unicode.IsUpper(r) {
			env.env[name] = val
		}
	}
}

// createCommand registers val, if it is a function, as the command name.
// A function with a single parameter called args receives the command line
// as is, otherwise the command line is evaluated as the tuple of its
// arguments.
func (env *Env) createCommand(name string, val starlark.Value) {
	fn, ok := val.(*starlark.Function)
	if !ok {
		return
	}
	helpMsg := fn.Doc()
	if helpMsg == "" {
		helpMsg = "user defined"
	}
	raw := false
	if fn.NumParams() == 1 {
		p, _ := fn.Param(0)
		raw = p == "args"
	}

	env.ctx.RegisterCommand(name, helpMsg, func(args string) error {
		thread := env.newThread()
		argv := starlark.Tuple{starlark.String(args)}
		if !raw {
			v, err := starlark.Eval(thread, "<input>", "("+args+")", env.env)
			if err != nil {
				return err
			}
			if t, ok := v.(starlark.Tuple); ok {
				argv = t
			} else {
				argv = starlark.Tuple{v}
			}
		}
		_, err := starlark.Call(thread, fn, argv, nil)
		return err
	})
}

// callMain calls the function called name, when globals has one.
func (env *Env) callMain(thread *starlark.Thread, globals starlark.StringDict, name string, args []interface{}) (starlark.Value, error) {
	if name == "" || globals[name] == nil {
		return starlark.None, nil
	}
	fn, ok := globals[name].(*starlark.Function)
	if !ok {
		return starlark.None, fmt.Errorf("%s is not a function", name)
	}
	if fn.NumParams() != len(args) {
		return starlark.None, fmt.Errorf("%s takes %d arguments, %d given", name, fn.NumParams(), len(args))
	}
	argv := make(starlark.Tuple, len(args))
	for i := range args {
		argv[i] = env.toStarlark(args[i])
	}
	return starlark.Call(thread, fn, argv, nil)
}

func (env *Env) newThread() *starlark.Thread {
	ctx, cancel := context.WithCancel(context.Background())
	thread := &starlark.Thread{
		Print: func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) },
	}
	thread.SetLocal(contextName, ctx)
	env.contextMu.Lock()
	env.thread, env.cancelfn = thread, cancel
	env.contextMu.Unlock()
	return thread
}

// Cancel stops the script, or script command, that is running.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	defer env.contextMu.Unlock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
}

func toAddress(v starlark.Value) (uint64, error) {
	switch v := v.(type) {
	case starlark.Int:
		if addr, ok := v.Uint64(); ok {
			return addr, nil
		}
	case variableAsStarlarkValue:
		return v.v.Address(), nil
	}
	return 0, fmt.Errorf("%s is not a valid address", v.String())
}

func isCancelled(thread *starlark.Thread) error {
	ctx, ok := thread.Local(contextName).(context.Context)
	if !ok {
		return nil
	}
	return ctx.Err()
}

// decorateError prefixes err with the position of the call that failed.
func decorateError(thread *starlark.Thread, err error) error {
	pos := thread.CallFrame(1).Pos
	loc := fmt.Sprintf("%s:%d", pos.Filename(), pos.Line)
	if pos.Col > 0 {
		loc += fmt.Sprintf(":%d", pos.Col)
	}
	return fmt.Errorf("%s: %w", loc, err)
}

// EchoWriter is the output of the environment. Echo is called with the
// lines read by the REPL.
type EchoWriter interface {
	io.Writer
	Echo(string)
	Flush()
}

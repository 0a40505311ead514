package terminal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/nativeview/pkg/config"
	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/snapshot"
	_ "github.com/go-delve/nativeview/pkg/stdtypes"
	"github.com/go-delve/nativeview/pkg/symbols"
)

type FakeTerminal struct {
	*Term
	t   testing.TB
	out *bytes.Buffer
}

func (ft *FakeTerminal) Exec(cmdstr string) (string, error) {
	ft.out.Reset()
	err := ft.cmds.Call(cmdstr, ft.Term)
	return ft.out.String(), err
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) AssertExecError(cmdstr, tgterr string) {
	_, err := ft.Exec(cmdstr)
	if err == nil {
		ft.t.Fatalf("Expected error executing %q", cmdstr)
	}
	assert.Contains(ft.t, err.Error(), tgterr)
}

func attachSnapshot(t testing.TB, sess *session.Session, id string) *snapshot.Snapshot {
	snap, err := snapshot.Load(filepath.Join("testdata", "strings.yml"))
	require.NoError(t, err)
	syms, err := symbols.NewTable(symbols.FromSnapshot(snap))
	require.NoError(t, err)
	_, err = sess.Attach(id, snap, syms)
	require.NoError(t, err)
	return snap
}

func withTestTerminal(t *testing.T, conf *config.Config, fn func(*FakeTerminal)) {
	sess := session.New(conf)
	defer sess.Close()
	attachSnapshot(t, sess, "p1")
	out := new(bytes.Buffer)
	term := newTerm(sess, conf, out)
	defer term.Close()
	fn(&FakeTerminal{Term: term, t: t, out: out})
}

func TestCommandDefault(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		term.AssertExecError("madeupcommand", "command not available")
		assert.Equal(t, "", term.MustExec(""))
	})
}

func TestPrint(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		assert.Equal(t, "5\n", term.MustExec("print s._Mysize"))
		assert.Equal(t, "\"hello\"\n", term.MustExec("p (char[5])(0x1000)"))
		assert.Equal(t, "\"hello\"\n", term.MustExec("print s._Bx._Buf"))
		assert.Equal(t, "101 'e'\n", term.MustExec("print s._Bx._Buf[1]"))
		assert.Equal(t, "48 '0'\n", term.MustExec("print *l._Bx._Ptr"))

		out := term.MustExec("print s")
		assert.True(t, strings.HasPrefix(out, "std::string {\n"), out)
		assert.Contains(t, out, "_Mysize: 5\n")
		assert.Contains(t, out, "_Myres: 15\n")

		term.AssertExecError("print", "not enough arguments")
		term.AssertExecError("print missing", "could not find symbol value for missing")
		term.AssertExecError("print s._Bx._Buf[16]", "out of bounds")
		term.AssertExecError("print s.nofield", "nofield")
		term.AssertExecError("print s._Mysize[", "missing ]")
	})
}

func TestWhatis(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		out := term.MustExec("whatis s")
		assert.Contains(t, out, "std::string\n")
		assert.Contains(t, out, "Kind: struct, size: 32\n")
		assert.Contains(t, out, "_Mysize")
		assert.Contains(t, out, "User types: std::basic_string, std::string\n")

		out = term.MustExec("whatis s._Mysize")
		assert.NotContains(t, out, "User types")
	})
}

func TestCast(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		out := term.MustExec("cast std::string s")
		assert.Contains(t, out, "s = (std::basic_string) \"hello\"\n")
		assert.Contains(t, out, "length")
		assert.Contains(t, out, "= 5\n")
		assert.Contains(t, out, "= 15\n")

		out = term.MustExec("c std::string l")
		assert.Contains(t, out, "= 40\n")
		assert.Contains(t, out, "\"0123456789012345678901234567890123456789\"")

		term.AssertExecError("cast std::string s._Mysize", "no registered layout matched")
		term.AssertExecError("cast std::vector s", "std::vector")
		term.AssertExecError("cast std::string", "not enough arguments")

		out = term.MustExec("cast -list")
		assert.Equal(t, "std::basic_string\nstd::string\nstd::wstring\n", out)
	})
}

func TestWriteInvalidatesCache(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		assert.Contains(t, term.MustExec("cast std::string s"), "\"hello\"")
		assert.Equal(t, "1 bytes written at 0x1000\n", term.MustExec("write 0x1000 j"))
		assert.Contains(t, term.MustExec("cast std::string s"), "\"jello\"")
		term.MustExec("write -x 0x1000 6d")
		assert.Contains(t, term.MustExec("cast std::string s"), "\"mello\"")

		term.AssertExecError("write 0x1000", "wrong number of arguments")
		term.AssertExecError("write -x 0x1000 zz", "invalid byte")
		term.AssertExecError("write 0x9000 j", "not mapped")
	})
}

func TestCommandsAreActions(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		before := term.sess.Actions()
		term.MustExec("print s._Mysize")
		term.MustExec("cast std::string s")
		term.MustExec("help")
		assert.Equal(t, before+2, term.sess.Actions())
	})
}

func TestCaching(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		assert.Equal(t, "Caching of user type members: on\nCaching of casts: on\n", term.MustExec("caching"))
		term.MustExec("caching off")
		term.MustExec("caching -casts off")
		assert.False(t, term.sess.CachingEnabled())
		assert.False(t, term.sess.UserCastCachingEnabled())
		assert.Equal(t, "Caching of user type members: off\nCaching of casts: off\n", term.MustExec("caching"))

		// values are read again every time
		assert.Contains(t, term.MustExec("cast std::string s"), "\"hello\"")
		term.AssertExecError("caching maybe", "expected on or off")
		term.AssertExecError("caching -all on", "unknown option")
	})
}

func TestCacheCommand(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		term.MustExec("cast std::string s")
		out := term.MustExec("cache")
		assert.Contains(t, out, "Process p1\n")
		assert.Contains(t, out, "cached casts:")
		assert.Contains(t, out, "state syncs:")

		p, err := term.sess.Current()
		require.NoError(t, err)
		assert.Equal(t, 1, p.CachedCasts())
		term.MustExec("cache clear")
		assert.Equal(t, 0, p.CachedCasts())
		term.AssertExecError("cache flush", "unknown argument")
	})
}

func TestReload(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		term.MustExec("cast std::string s")
		p, err := term.sess.Current()
		require.NoError(t, err)
		loads := p.Symbols().Loads()
		assert.Equal(t, "Symbols of 1 processes reloaded\n", term.MustExec("reload"))
		assert.Equal(t, loads+1, p.Symbols().Loads())
		assert.Equal(t, 0, p.CachedCasts())
	})
}

func TestProcessCommand(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		snap := attachSnapshot(t, term.sess, "p2")
		_, err := snap.WriteMemory(0x1000, []byte("y"))
		require.NoError(t, err)

		path := filepath.Join("testdata", "strings.yml")
		assert.Equal(t, "* Process p1 ("+path+")\n  Process p2 ("+path+")\n", term.MustExec("process"))
		assert.Contains(t, term.MustExec("process p2 cast std::string s"), "\"yello\"")
		assert.Contains(t, term.MustExec("cast std::string s"), "\"hello\"")

		assert.Equal(t, "Switched to process p2\n", term.MustExec("proc p2"))
		assert.Contains(t, term.MustExec("cast std::string s"), "\"yello\"")
		term.AssertExecError("process p3", "p3")
	})
}

func TestExamineMemoryCmd(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		assert.Equal(t, "0x00001000:  68 65 6c 6c 6f\n", term.MustExec("x -count 5 0x1000"))
		out := term.MustExec("examinemem s")
		assert.Equal(t, 2, strings.Count(out, "\n"))
		assert.True(t, strings.HasPrefix(out, "0x00001000:  68 65 6c 6c 6f 00"), out)
		term.AssertExecError("x -count 2000 0x1000", "less than or equal")
		term.AssertExecError("x -count", "expected argument")
		term.AssertExecError("x", "no address specified")
	})
}

func TestPrettyExamineMemory(t *testing.T) {
	assert.Equal(t, "0x00001000:  01 02\n", prettyExamineMemory(0x1000, []byte{1, 2}))
	assert.Equal(t, "0x123456789a:  ff\n", prettyExamineMemory(0x123456789a, []byte{0xff}))

	mem := make([]byte, 17)
	assert.Equal(t, "0x0000fff8:  "+strings.Repeat(" 00", 16)[1:]+"\n0x00010008:  00\n", prettyExamineMemory(0xfff8, mem))
}

func TestVarsAndTypes(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		out := term.MustExec("vars")
		assert.Contains(t, out, "l")
		assert.Contains(t, out, "@ 0x1020")
		out = term.MustExec("vars ^s$")
		assert.Contains(t, out, "@ 0x1000")
		assert.NotContains(t, out, "@ 0x1020")

		out = term.MustExec("types String_val")
		assert.Equal(t, "std::_String_val::_Bxty\n", out)
		term.AssertExecError("types [", "invalid filter argument")
	})
}

func TestExecuteFile(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cmds")
		require.NoError(t, os.WriteFile(path, []byte("# comment\nwrite 0x1000 c\nmadeupcommand\ncast std::string s\n"), 0o600))
		out := term.MustExec("source " + path)
		assert.Contains(t, out, path+":3: command not available\n")
		assert.Contains(t, out, "\"cello\"")
	})
}

func TestStarlarkSource(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		dir := t.TempDir()
		path := filepath.Join(dir, "cmds.star")
		require.NoError(t, os.WriteFile(path, []byte(`
def command_strlen(args):
    "Prints the length of a string."
    print(cast(args, "std::string").length)

def main():
    nview_command("print s._Myres")
`), 0o600))
		before := term.sess.Actions()
		assert.Equal(t, "15\n", term.MustExec("source "+path))
		assert.Equal(t, before+1, term.sess.Actions())

		assert.Equal(t, "40\n", term.MustExec("strlen l"))
		assert.Equal(t, "Prints the length of a string.\n", term.MustExec("help strlen"))
		assert.Equal(t, before+2, term.sess.Actions())

		term.AssertExecError("process p1 source "+path, "can not be called by another command")
	})
}

func TestConfig(t *testing.T) {
	withTestTerminal(t, &config.Config{}, func(term *FakeTerminal) {
		term.MustExec("config max-string-len 4")
		assert.Equal(t, "\"hel...\n", term.MustExec("print s._Bx._Buf"))

		term.MustExec("config alias print pp")
		assert.Equal(t, "5\n", term.MustExec("pp s._Mysize"))
		term.MustExec("config alias pp")
		term.AssertExecError("pp s._Mysize", "command not available")

		term.MustExec("config enable-variable-caching false")
		assert.False(t, term.sess.CachingEnabled())
		assert.True(t, term.sess.UserCastCachingEnabled())

		term.MustExec("config symbol-search-paths /a \"/b c\"")
		assert.Equal(t, []string{"/a", "/b c"}, term.conf.SymbolSearchPaths)

		out := term.MustExec("config -list")
		assert.Contains(t, out, "max-string-len")
		assert.Contains(t, out, "enable-variable-caching")

		term.AssertExecError("config nonexistent 1", "is not a configuration parameter")
		term.AssertExecError("config max-string-len x", "must be a number")
		term.AssertExecError("config enable-variable-caching maybe", "must be true or false")
	})
}

func TestComplete(t *testing.T) {
	c := DefaultCommands()
	assert.Equal(t, []string{"c", "cache", "caching", "cast", "config"}, c.Complete("c"))
	assert.Equal(t, []string{"cache", "caching"}, c.Complete("cac"))
	assert.Nil(t, c.Complete("print s"))
	c.Merge(map[string][]string{"cast": {"userview"}})
	assert.Equal(t, []string{"userview"}, c.Complete("u"))
}

func TestHelp(t *testing.T) {
	withTestTerminal(t, nil, func(term *FakeTerminal) {
		out := term.MustExec("help")
		assert.Contains(t, out, "Viewing program variables and memory:")
		assert.Contains(t, out, "cast (alias: c)")
		assert.Contains(t, term.MustExec("help reload"), "Reloads the symbols of all processes.")
		term.AssertExecError("help madeupcommand", "command not available")
	})
}

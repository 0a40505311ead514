package starbind_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/snapshot"
	_ "github.com/go-delve/nativeview/pkg/stdtypes"
	"github.com/go-delve/nativeview/pkg/symbols"
	"github.com/go-delve/nativeview/pkg/terminal/starbind"
)

const testSnapshot = `
ptr-size: 8
regions:
  - addr: 0x1000
    data: |
      68656c6c6f0000000000000000000000 0500000000000000 0f00000000000000
      0012000000000000 0000000000000000 2800000000000000 2f00000000000000
  - addr: 0x1200
    data: |
      30313233343536373839303132333435363738393031323334353637383930313233343536373839
types:
  - name: "std::string"
    kind: struct
    size: 32
    fields:
      - {name: _Bx, offset: 0, type: "std::_String_val::_Bxty"}
      - {name: _Mysize, offset: 16, type: "unsigned __int64"}
      - {name: _Myres, offset: 24, type: "unsigned __int64"}
  - name: "std::_String_val::_Bxty"
    kind: union
    size: 16
    fields:
      - {name: _Buf, offset: 0, type: "char[16]"}
      - {name: _Ptr, offset: 0, type: "char*"}
globals:
  - {name: s, addr: 0x1000, type: "std::string"}
  - {name: l, addr: 0x1020, type: "std::string"}
`

type fakeContext struct {
	s    *session.Session
	cmds map[string]func(string) error
	help map[string]string
}

func (ctx *fakeContext) Session() *session.Session { return ctx.s }

func (ctx *fakeContext) RegisterCommand(name, helpMsg string, cmdfn func(args string) error) {
	ctx.cmds[name] = cmdfn
	ctx.help[name] = helpMsg
}

func (ctx *fakeContext) CallCommand(cmdstr string) error {
	name, args, _ := strings.Cut(cmdstr, " ")
	cmdfn, ok := ctx.cmds[name]
	if !ok {
		return fmt.Errorf("command not available")
	}
	return cmdfn(args)
}

type echoBuffer struct {
	bytes.Buffer
}

func (*echoBuffer) Echo(string) {}
func (*echoBuffer) Flush()      {}

func newEnv(t *testing.T) (*starbind.Env, *fakeContext, *echoBuffer) {
	t.Helper()
	snap, err := snapshot.Parse([]byte(testSnapshot))
	require.NoError(t, err)
	syms, err := symbols.NewTable(symbols.FromSnapshot(snap))
	require.NoError(t, err)
	s := session.New(nil)
	t.Cleanup(s.Close)
	_, err = s.Attach("p1", snap, syms)
	require.NoError(t, err)
	ctx := &fakeContext{s: s, cmds: map[string]func(string) error{}, help: map[string]string{}}
	out := &echoBuffer{}
	return starbind.New(ctx, out), ctx, out
}

func TestVariables(t *testing.T) {
	env, _, out := newEnv(t)
	_, err := env.Execute("test.star", `
def main():
    s = var("s")
    print(s.type, s.addr, s.kind)
    print(s._Mysize.value, s._Bx._Buf.text, len(s._Bx._Buf))
    print(s._Bx._Buf[1].value)
    print(var("l")._Bx._Ptr.deref.value)
    print(value(0x1000, "char[5]"))
`, "main", nil)
	require.NoError(t, err)
	assert.Equal(t, "std::string 4096 struct\n5 hello 16\n101\n48\n\"hello\"\n", out.String())
}

func TestCast(t *testing.T) {
	env, ctx, out := newEnv(t)
	v, err := env.Execute("test.star", `
def main():
    a = cast("s", "std::string")
    print(a.text, a.length, a.reserved)
    write_memory(0x1000, "j")
    print(a.text)
    sync_state()
    print(a.text)
    print(cast(var("l"), "std::string").length)
    return a.layout
`, "main", nil)
	require.NoError(t, err)
	assert.Equal(t, "\"msvc2013\"", v.String())
	assert.Equal(t, "hello 5 15\nhello\njello\n40\n", out.String())
	assert.Equal(t, uint64(1), ctx.s.Actions())
}

func TestCastErrors(t *testing.T) {
	env, _, _ := newEnv(t)
	_, err := env.Execute("test.star", `cast(var("s")._Mysize, "std::string")`, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registered layout matched")

	_, err = env.Execute("test.star", `var("missing")`, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find symbol value for missing")

	_, err = env.Execute("test.star", `cast("s", "std::string").nonexistent`, "", nil)
	require.Error(t, err)
}

func TestCaching(t *testing.T) {
	env, ctx, out := newEnv(t)
	_, err := env.Execute("test.star", `
def main():
    set_caching(False, user_casts=False)
    print(user_types())
    print(processes()[0])
`, "main", nil)
	require.NoError(t, err)
	assert.False(t, ctx.s.CachingEnabled())
	assert.False(t, ctx.s.UserCastCachingEnabled())
	assert.Equal(t, "[\"std::basic_string\", \"std::string\", \"std::wstring\"]\np1\n", out.String())
}

func TestCommands(t *testing.T) {
	env, ctx, out := newEnv(t)
	_, err := env.Execute("test.star", `
def command_greet(args):
    "Greets someone."
    print("hi " + args)

def command_add(a, b):
    print(a + b)
`, "", nil)
	require.NoError(t, err)
	require.Contains(t, ctx.cmds, "greet")
	require.Contains(t, ctx.cmds, "add")
	assert.Equal(t, "Greets someone.", ctx.help["greet"])
	assert.Equal(t, "user defined", ctx.help["add"])

	require.NoError(t, ctx.CallCommand("greet bob"))
	require.NoError(t, ctx.CallCommand("add 1, 2"))
	assert.Equal(t, "hi bob\n3\n", out.String())

	out.Reset()
	_, err = env.Execute("test.star", `nview_command("greet", "alice")`, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi alice\n", out.String())
}

func TestExportGlobals(t *testing.T) {
	env, _, out := newEnv(t)
	_, err := env.Execute("a.star", "Greeting = 'hello'\nlocal = 1\n", "", nil)
	require.NoError(t, err)
	_, err = env.Execute("b.star", "print(Greeting)", "", nil)
	require.NoError(t, err)
	_, err = env.Execute("c.star", "print(local)", "", nil)
	assert.Error(t, err)
	assert.Equal(t, "hello\n", out.String())
}

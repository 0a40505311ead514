package terminal

import (
	"github.com/go-delve/nativeview/pkg/session"
	"github.com/go-delve/nativeview/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) Session() *session.Session {
	return ctx.term.sess
}

// RegisterCommand registers a command defined by a script. The command
// runs as an action, like the builtin ones.
func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.term.cmds.Register(name, func(t *Term, ctx callContext, args string) error {
		return fn(args)
	}, helpMsg)
}

// CallCommand runs cmdstr inside the action of the calling script.
func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.CallWithContext(cmdstr, ctx.term, callContext{InAction: true})
}

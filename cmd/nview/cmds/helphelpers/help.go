// Package helphelpers hides, in the help of each command, the persistent
// flags that have no effect on it.
package helphelpers

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// hidden lists, for every command, the flags its help should not show. A
// nil list hides every flag.
var hidden = map[string][]string{
	"nview":   nil,
	"help":    nil,
	"version": nil,
	"log":     nil,
	"open":    {},
	"run":     {"init"},
	"cast":    {"init"},
}

// Prepare marks as hidden the flags of cmd that do not apply to it. The
// persistent flags stay on the root command so that
//
//	nview --init cmds.txt open core.yml
//
// and
//
//	nview open --init cmds.txt core.yml
//
// parse the same way. Flags hidden by Prepare stay hidden, cmd should not
// be reused afterwards.
func Prepare(cmd *cobra.Command) {
	names, ok := hidden[cmd.Name()]
	if !ok {
		return
	}
	if names == nil {
		hide := func(f *pflag.Flag) { f.Hidden = true }
		cmd.PersistentFlags().VisitAll(hide)
		cmd.Flags().VisitAll(hide)
		return
	}
	for _, name := range names {
		for c := cmd; c != nil; c = c.Parent() {
			if f := c.Flags().Lookup(name); f != nil {
				f.Hidden = true
				break
			}
		}
	}
}

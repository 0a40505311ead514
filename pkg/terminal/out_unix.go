//go:build linux || darwin || freebsd

package terminal

import (
	"os"

	"golang.org/x/sys/unix"
)

func (pg *pager) getWindowSize() {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		pg.state = pagerOff
		return
	}
	pg.rows, pg.cols = int(ws.Row), int(ws.Col)
}

package terminal

import (
	"os"

	"golang.org/x/sys/windows"
)

func (pg *pager) getWindowSize() {
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Handle(os.Stdout.Fd()), &info); err != nil {
		pg.state = pagerOff
		return
	}
	pg.rows = int(info.Window.Bottom-info.Window.Top) + 1
	pg.cols = int(info.Window.Right-info.Window.Left) + 1
}

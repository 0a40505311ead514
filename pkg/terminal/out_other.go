//go:build !linux && !darwin && !freebsd && !windows

package terminal

func (pg *pager) getWindowSize() {
	pg.state = pagerOff
}

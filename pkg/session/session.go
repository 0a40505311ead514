// Package session hosts the processes being inspected and runs the actions
// performed on them.
//
// Actions, a script or a single command, are mutually exclusive. When an
// action completes the cached state of every process is synchronized, so
// that the next action observes the current memory of the processes.
// Symbols are reloaded only on request, reloading them also clears the
// caches that depend on type layouts.
package session

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/go-delve/nativeview/pkg/cache"
	"github.com/go-delve/nativeview/pkg/config"
	"github.com/go-delve/nativeview/pkg/logflags"
	"github.com/go-delve/nativeview/pkg/native"
	"github.com/go-delve/nativeview/pkg/symbols"
	"github.com/go-delve/nativeview/pkg/usertype"
)

// ErrNoProcess is returned when there is no current process.
var ErrNoProcess = errors.New("no process attached")

// Session is a set of attached processes.
type Session struct {
	conf *config.Config
	log  logflags.Logger

	// actionMu is held for the duration of an action.
	actionMu sync.Mutex
	actions  atomic.Uint64

	caching         atomic.Bool
	userCastCaching atomic.Bool

	mu      sync.RWMutex
	procs   []*Process
	current *Process
}

// New creates a session configured by conf, conf can be nil.
func New(conf *config.Config) *Session {
	s := &Session{conf: conf, log: logflags.SessionLogger()}
	s.caching.Store(conf.VariableCaching())
	s.userCastCaching.Store(conf.UserCastedVariableCaching())
	return s
}

// Config returns the configuration of s.
func (s *Session) Config() *config.Config {
	return s.conf
}

// Attach adds a process to the session. The first process attached
// becomes the current process.
func (s *Session) Attach(id string, mem native.MemoryReader, syms *symbols.Table) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.procs {
		if p.id == id {
			return nil, fmt.Errorf("process %q already attached", id)
		}
	}
	b := cache.NewBucket(id,
		cache.WithCaching(s.caching.Load()),
		cache.WithUserCastCaching(s.userCastCaching.Load()),
		cache.WithTypeMatchCacheSize(s.conf.TypeMatchCacheEntries()))
	p := newProcess(id, mem, syms, b)
	s.procs = append(s.procs, p)
	if s.current == nil {
		s.current = p
	}
	s.log.WithField("process", id).Debugf("attached, symbols from %s", syms.Name())
	return p, nil
}

// Detach removes the process called id from the session and releases its
// caches.
func (s *Session) Detach(id string) error {
	s.mu.Lock()
	var p *Process
	for i := range s.procs {
		if s.procs[i].id == id {
			p = s.procs[i]
			s.procs = append(s.procs[:i], s.procs[i+1:]...)
			break
		}
	}
	if p != nil && s.current == p {
		s.current = nil
		if len(s.procs) > 0 {
			s.current = s.procs[0]
		}
	}
	s.mu.Unlock()
	if p == nil {
		return fmt.Errorf("no process %q", id)
	}
	p.bucket.Close()
	s.log.WithField("process", id).Debug("detached")
	return nil
}

// Processes returns the attached processes in the order they were
// attached.
func (s *Session) Processes() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Process(nil), s.procs...)
}

// Process returns the process called id.
func (s *Session) Process(id string) (*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.procs {
		if p.id == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no process %q", id)
}

// SetCurrent makes the process called id the current process.
func (s *Session) SetCurrent(id string) error {
	p, err := s.Process(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
	return nil
}

// Current returns the current process.
func (s *Session) Current() (*Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoProcess
	}
	return s.current, nil
}

// ExecuteAction runs fn as an action. Actions are mutually exclusive, once
// fn returns the state of every attached process is synchronized.
// A panic in fn is returned as an error.
func (s *Session) ExecuteAction(fn func() error) (err error) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	n := s.actions.Add(1)

	defer func() {
		if ierr := recover(); ierr != nil {
			s.log.Errorf("action %d: panic: %v\n%s", n, ierr, debug.Stack())
			err = fmt.Errorf("internal error: %v", ierr)
		}
		s.SyncState()
		if logflags.Session() {
			s.log.WithField("action", n).Debugf("completed, err=%v", err)
		}
	}()

	return fn()
}

// Actions returns the number of actions executed so far.
func (s *Session) Actions() uint64 {
	return s.actions.Load()
}

// SyncState synchronizes the cached state of every attached process with
// its memory.
func (s *Session) SyncState() {
	for _, p := range s.Processes() {
		p.SyncState()
	}
}

// ReloadMetadata reloads the symbols of every attached process and clears
// all caches that depend on them. The symbols of every process are
// reloaded even if some fail.
func (s *Session) ReloadMetadata() error {
	var errs []error
	for _, p := range s.Processes() {
		if err := p.ReloadMetadata(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.id, err))
		}
	}
	return errors.Join(errs...)
}

// SetCachingEnabled enables or disables caching of the members of user
// type values for all processes.
func (s *Session) SetCachingEnabled(enabled bool) {
	s.caching.Store(enabled)
	for _, p := range s.Processes() {
		p.bucket.SetCachingEnabled(enabled)
	}
}

// CachingEnabled reports whether caching of members is enabled.
func (s *Session) CachingEnabled() bool {
	return s.caching.Load()
}

// SetUserCastCachingEnabled enables or disables caching of user type casts
// for all processes.
func (s *Session) SetUserCastCachingEnabled(enabled bool) {
	s.userCastCaching.Store(enabled)
	for _, p := range s.Processes() {
		p.bucket.SetUserCastCachingEnabled(enabled)
	}
}

// UserCastCachingEnabled reports whether caching of user type casts is
// enabled.
func (s *Session) UserCastCachingEnabled() bool {
	return s.userCastCaching.Load()
}

// Close detaches all processes.
func (s *Session) Close() {
	for _, p := range s.Processes() {
		s.Detach(p.id)
	}
}

// UserTypes returns the names of the user types values can be casted to.
func (s *Session) UserTypes() []string {
	return usertype.Default.Names()
}

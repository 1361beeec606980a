package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is paused. Nil views and empty
// module names are treated as unpaused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concurrency-safe pause registry implementing PauseView.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses builds a registry with the supplied modules already paused.
func NewPauses(initial ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool, len(initial))}
	for _, module := range initial {
		if module != "" {
			p.paused[module] = true
		}
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Pause marks the module paused until Resume is called.
func (p *Pauses) Pause(module string) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[module] = true
}

// Resume clears the pause flag for the module.
func (p *Pauses) Resume(module string) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.paused, module)
}

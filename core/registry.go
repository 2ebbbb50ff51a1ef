package core

// registry.go – the application dispatch table. Applications are trusted
// modules registered at startup; the core routes each transaction to the
// handler named by its app_name and hands it a StateContext scoped to the
// current fork.

import (
	"fmt"
	"sort"
	"sync"
)

// StateContext is the bounded capability an application mutates chain state
// through. All reads see the backing fork's uncommitted writes.
type StateContext interface {
	Put(address string, entry *State)
	Get(address string) (*State, bool)
	Contains(address string) bool

	PutTxn(hash Hash, txn *SignedTransaction)
	GetTxn(hash Hash) (*SignedTransaction, bool)
	ContainsTxn(hash Hash) bool
}

// AppHandler executes one transaction against the current state. It returns
// true iff the transaction was applied; an applied transaction must be
// recorded in the transaction trie via PutTxn. Handlers are expected to be
// deterministic functions of the transaction and the current state.
type AppHandler interface {
	Execute(txn *SignedTransaction, ctx StateContext) bool
	Name() string
}

// AppRegistry maps app_name to its handler.
type AppRegistry struct {
	mu       sync.RWMutex
	handlers map[string]AppHandler
}

func NewAppRegistry() *AppRegistry {
	return &AppRegistry{handlers: make(map[string]AppHandler)}
}

// Register installs a handler under its own name. Registering the same name
// twice is a startup error.
func (r *AppRegistry) Register(h AppHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := h.Name()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("app %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *AppRegistry) Lookup(name string) (AppHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists the registered app names, sorted.
func (r *AppRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

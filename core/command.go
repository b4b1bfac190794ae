package core

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownCommand is returned when dispatching a name that was never registered
var ErrUnknownCommand = errors.New("unknown command")

// ErrCommandLatched is returned when a command is refused because the latch is set
var ErrCommandLatched = errors.New("command ignored - emergency stop active")

// CommandError names the command a dispatch failure refers to
type CommandError struct {
	Name string
	Err  error
}

func (e *CommandError) Error() string {
	return e.Err.Error() + ": " + e.Name
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandHandler handles one control-channel command at loop time now
type CommandHandler func(now uint32) error

// Command represents a control-channel command
type Command struct {
	ID      uint16
	Name    string
	Format  string // Short description for the dictionary (e.g., "L=150 R=150")
	Handler CommandHandler

	// AllowLatched commands still run while the emergency latch is set
	AllowLatched bool
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   map[uint16]*Command
	nameToID   map[string]uint16
	nextID     uint16
	dictionary string // Serialized dictionary for the dashboard
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
		nextID:   0,
	}
}

// Register adds a command to the registry
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	return r.register(&Command{Name: name, Format: format, Handler: handler})
}

// RegisterLatched adds a command that keeps working while the latch is set
func (r *CommandRegistry) RegisterLatched(name string, format string, handler CommandHandler) uint16 {
	return r.register(&Command{Name: name, Format: format, Handler: handler, AllowLatched: true})
}

func (r *CommandRegistry) register(cmd *Command) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check if already registered
	if id, exists := r.nameToID[cmd.Name]; exists {
		return id
	}

	cmd.ID = r.nextID
	r.nextID++

	r.commands[cmd.ID] = cmd
	r.nameToID[cmd.Name] = cmd.ID

	// Rebuild dictionary
	r.rebuildDictionary()

	return cmd.ID
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Lookup retrieves a command by name
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered under name.
// When latched is true only AllowLatched commands run.
func (r *CommandRegistry) Dispatch(name string, latched bool, now uint32) error {
	cmd, ok := r.Lookup(name)
	if !ok {
		return &CommandError{Name: name, Err: ErrUnknownCommand}
	}
	if latched && !cmd.AllowLatched {
		return &CommandError{Name: name, Err: ErrCommandLatched}
	}
	if cmd.Handler == nil {
		return nil
	}
	return cmd.Handler(now)
}

// Names returns the registered command names, sorted
func (r *CommandRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.nameToID))
	for name := range r.nameToID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetDictionary returns the command dictionary string
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary
}

// rebuildDictionary rebuilds the dictionary string
// Must be called with lock held
func (r *CommandRegistry) rebuildDictionary() {
	dict := ""
	for i := uint16(0); i < r.nextID; i++ {
		if cmd, ok := r.commands[i]; ok {
			if cmd.Format != "" {
				dict += cmd.Name + " " + cmd.Format + "\n"
			} else {
				dict += cmd.Name + "\n"
			}
		}
	}
	r.dictionary = dict
}

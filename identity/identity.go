// Package identity resolves the acting user and describes the worker server
// that owns a delivery attempt.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-automate"
)

const (
	UserClassName   = "User"
	ServerClassName = "MiqServer"

	// AutomateRole is the server role that processes automation requests.
	AutomateRole = "automate"
)

type Group struct {
	ID          int64  `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
}

type User struct {
	ID           int64  `json:"id" yaml:"id"`
	UserID       string `json:"userid" yaml:"userid"`
	Name         string `json:"name" yaml:"name"`
	CurrentGroup *Group `json:"current_group,omitempty" yaml:"current_group,omitempty"`
}

func (u *User) ObjectID() int64   { return u.ID }
func (u *User) ClassName() string { return UserClassName }

// Authenticated reports whether u is a usable acting identity.
func (u *User) Authenticated() bool {
	return u != nil && u.ID > 0 && strings.TrimSpace(u.UserID) != ""
}

// Server identifies the worker process handling deliveries.
type Server struct {
	ID    int64    `json:"id" yaml:"id"`
	GUID  string   `json:"guid" yaml:"guid"`
	Zone  string   `json:"zone" yaml:"zone"`
	Roles []string `json:"roles" yaml:"roles"`
}

func (s *Server) ObjectID() int64   { return s.ID }
func (s *Server) ClassName() string { return ServerClassName }

// HasActiveRole reports whether role is enabled on the server.
func (s *Server) HasActiveRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Store looks users and groups up by id.
type Store interface {
	FindUser(ctx context.Context, id int64) (*User, error)
	FindGroup(ctx context.Context, id int64) (*Group, error)
}

// MemoryStore is a Store backed by maps.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[int64]User
	groups map[int64]Group
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]User),
		groups: make(map[int64]Group),
	}
}

func (s *MemoryStore) AddGroup(g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
}

func (s *MemoryStore) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CurrentGroup != nil {
		g := *u.CurrentGroup
		u.CurrentGroup = &g
		s.groups[g.ID] = g
	}
	s.users[u.ID] = u
}

func (s *MemoryStore) FindUser(_ context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, automate.NewError(automate.ErrUserNotFound, "", nil, map[string]any{"user_id": id})
	}
	if u.CurrentGroup != nil {
		g := *u.CurrentGroup
		u.CurrentGroup = &g
	}
	return &u, nil
}

func (s *MemoryStore) FindGroup(_ context.Context, id int64) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, automate.NewError(automate.ErrGroupNotFound, "", nil, map[string]any{"miq_group_id": id})
	}
	return &g, nil
}

package auth

import (
	"sort"
	"sync"
)

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Repository interface {
	LoadAll() ([]User, error)
	Upsert(user User) error
	Remove(userID int64) error
}

// Service tracks which chat users may talk to the bot and who has asked
// for access. The admin is always allowed.
type Service struct {
	mu      sync.RWMutex
	allowed Repository
	pending Repository
	adminID int64
	users   map[int64]User
	waiting map[int64]User
}

// NewWithRepo preloads both repositories and merges the initial IDs into
// the allowlist. Either repository may be nil for an in-memory list.
func NewWithRepo(allowed, pending Repository, adminID int64, initial []int64) (*Service, error) {
	s := &Service{
		allowed: allowed,
		pending: pending,
		adminID: adminID,
		users:   make(map[int64]User),
		waiting: make(map[int64]User),
	}
	if allowed != nil {
		users, err := allowed.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			s.users[u.ID] = u
		}
	}
	if pending != nil {
		users, err := pending.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			if _, ok := s.users[u.ID]; !ok {
				s.waiting[u.ID] = u
			}
		}
	}
	// IDs from env come without usernames
	for _, id := range initial {
		if _, ok := s.users[id]; !ok {
			s.users[id] = User{ID: id}
		}
	}
	return s, nil
}

func (s *Service) AdminID() int64 { return s.adminID }

func (s *Service) IsAdmin(userID int64) bool {
	return s.adminID != 0 && userID == s.adminID
}

func (s *Service) IsAllowed(userID int64) bool {
	if s.IsAdmin(userID) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// RequestAccess queues the user for approval. It reports false when the
// user was already waiting.
func (s *Service) RequestAccess(user User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiting[user.ID]; ok {
		return false, nil
	}
	s.waiting[user.ID] = user
	if s.pending != nil {
		return true, s.pending.Upsert(user)
	}
	return true, nil
}

// Approve moves a user from the waiting list (or from nowhere) onto the
// allowlist.
func (s *Service) Approve(userID int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.waiting[userID]
	if !ok {
		user = User{ID: userID}
	}
	delete(s.waiting, userID)
	s.users[userID] = user
	if s.pending != nil {
		if err := s.pending.Remove(userID); err != nil {
			return user, err
		}
	}
	if s.allowed != nil {
		return user, s.allowed.Upsert(user)
	}
	return user, nil
}

// Revoke removes a user from both lists.
func (s *Service) Revoke(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	delete(s.waiting, userID)
	if s.pending != nil {
		if err := s.pending.Remove(userID); err != nil {
			return err
		}
	}
	if s.allowed != nil {
		return s.allowed.Remove(userID)
	}
	return nil
}

func (s *Service) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.users)
}

func (s *Service) Pending() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.waiting)
}

func sorted(m map[int64]User) []User {
	out := make([]User, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

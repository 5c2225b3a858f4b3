package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is one deferred answer submission, captured while the backend was
// unreachable.
type Action struct {
	ID            uuid.UUID `json:"id"`
	RoomID        uuid.UUID `json:"room_id"`
	UserID        uuid.UUID `json:"user_id"`
	QuestionIndex int       `json:"question_index"`
	Answer        int       `json:"answer"`
	QueuedAt      time.Time `json:"queued_at"`
}

// Store persists queued actions across process restarts.
type Store interface {
	Append(action Action) error
	Pending(roomID uuid.UUID) ([]Action, error)
	Remove(id uuid.UUID) error
}

// MemoryStore keeps queued actions in memory. Used in tests and wherever
// surviving a restart does not matter.
type MemoryStore struct {
	mu      sync.Mutex
	actions []Action
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}

func (s *MemoryStore) Pending(roomID uuid.UUID) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, a := range s.actions {
		if a.RoomID == roomID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.actions {
		if a.ID == id {
			s.actions = append(s.actions[:i], s.actions[i+1:]...)
			return nil
		}
	}
	return nil
}

// FileStore persists queued actions as a JSON file, rewritten whole on every
// change. Queues hold at most a handful of actions, so the rewrite is cheap.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Append(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return err
	}
	return s.save(append(actions, action))
}

func (s *FileStore) Pending(roomID uuid.UUID) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Action
	for _, a := range actions {
		if a.RoomID == roomID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *FileStore) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.load()
	if err != nil {
		return err
	}
	for i, a := range actions {
		if a.ID == id {
			return s.save(append(actions[:i], actions[i+1:]...))
		}
	}
	return nil
}

func (s *FileStore) load() ([]Action, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var actions []Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}
	return actions, nil
}

func (s *FileStore) save(actions []Action) error {
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	return nil
}

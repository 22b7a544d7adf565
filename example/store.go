package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the state of a todo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Todo is one task.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// TodoStats summarizes the store.
type TodoStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// Store is an in-memory todo store with simulated latency, so fetches are
// visibly asynchronous.
type Store struct {
	mu      sync.RWMutex
	todos   map[string]*Todo
	nextID  int
	latency time.Duration
}

// NewStore creates a store with sample data.
func NewStore(latency time.Duration) *Store {
	s := &Store{
		todos:   make(map[string]*Todo),
		nextID:  1,
		latency: latency,
	}
	s.Add("Buy groceries")
	s.Add("Review PR #123")
	s.Add("Write documentation")
	return s
}

// Add creates a new todo and returns its ID.
func (s *Store) Add(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("todo-%d", s.nextID)
	s.nextID++
	s.todos[id] = &Todo{
		ID:        id,
		Title:     title,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	return id
}

// Toggle flips the completed status of a todo.
func (s *Store) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	todo, ok := s.todos[id]
	if !ok {
		return false
	}
	if todo.Status == StatusCompleted {
		todo.Status = StatusPending
	} else {
		todo.Status = StatusCompleted
	}
	return true
}

// List returns todos, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status) ([]Todo, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Todo, 0, len(s.todos))
	for _, todo := range s.todos {
		if status != "" && todo.Status != status {
			continue
		}
		result = append(result, *todo)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Get returns a todo by ID.
func (s *Store) Get(ctx context.Context, id string) (Todo, error) {
	if err := s.wait(ctx); err != nil {
		return Todo{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	todo, ok := s.todos[id]
	if !ok {
		return Todo{}, errNotFound(id)
	}
	return *todo, nil
}

// Stats returns statistics about the todos.
func (s *Store) Stats(ctx context.Context) (TodoStats, error) {
	if err := s.wait(ctx); err != nil {
		return TodoStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats TodoStats
	for _, todo := range s.todos {
		stats.Total++
		if todo.Status == StatusCompleted {
			stats.Completed++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errNotFound carries a 404 into the fetch state.
type errNotFound string

func (e errNotFound) Error() string   { return "todo " + string(e) + " not found" }
func (e errNotFound) StatusCode() int { return 404 }

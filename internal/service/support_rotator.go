package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sclint/support-desk/internal/domain"
	"github.com/sclint/support-desk/internal/repository"
)

// SupportRotator hands out approved support agents in round-robin order.
// The pool is read fresh on every call; only the cursor is kept in memory.
type SupportRotator struct {
	users  repository.UserRepository
	cursor atomic.Uint64
}

// Turn is one reserved slot in the rotation. Agent is nil when the pool was
// empty, in which case no slot was consumed.
type Turn struct {
	Agent *domain.User

	rotator *SupportRotator
	seq     uint64
}

// Release hands the slot back when the assignment was never persisted. The
// cursor only rewinds if no later turn has been handed out since.
func (t Turn) Release() {
	if t.rotator == nil || t.Agent == nil {
		return
	}
	t.rotator.cursor.CompareAndSwap(t.seq+1, t.seq)
}

// NewSupportRotator builds a rotator starting at the first agent.
func NewSupportRotator(users repository.UserRepository) *SupportRotator {
	return &SupportRotator{users: users}
}

// Reserve takes the next turn. Callers release it if the assignment fails.
func (r *SupportRotator) Reserve(ctx context.Context) (Turn, error) {
	pool, err := r.users.ListSupportAgents(ctx)
	if err != nil {
		return Turn{}, fmt.Errorf("list support agents: %w", err)
	}
	if len(pool) == 0 {
		return Turn{}, nil
	}
	seq := r.cursor.Add(1) - 1
	agent := pool[seq%uint64(len(pool))]
	return Turn{Agent: &agent, rotator: r, seq: seq}, nil
}

// Next returns the next agent, or nil when no agent is eligible.
func (r *SupportRotator) Next(ctx context.Context) (*domain.User, error) {
	turn, err := r.Reserve(ctx)
	if err != nil {
		return nil, err
	}
	return turn.Agent, nil
}

// Reset moves the cursor back to the first agent.
func (r *SupportRotator) Reset() {
	r.cursor.Store(0)
}

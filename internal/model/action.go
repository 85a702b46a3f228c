package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Kind string

const (
	KindSmall Kind = "small"
	KindLarge Kind = "large"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Action is one unit of client-originated work waiting to be delivered.
// Timestamps are unix milliseconds.
type Action struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Payload     string `json:"payload"`
	Status      Status `json:"status"`
	Priority    int    `json:"priority"`
	RetryCount  int    `json:"retry_count"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt *int64 `json:"completed_at"`

	// Seq is assigned by the store on insert and only breaks ordering ties.
	Seq int64 `json:"seq"`
}

func (a *Action) IsPending() bool   { return a.Status == StatusPending }
func (a *Action) IsCompleted() bool { return a.Status == StatusCompleted }

// Exhausted reports whether the action has used up its send attempts.
func (a *Action) Exhausted(maxRetry int) bool {
	return a.RetryCount >= maxRetry
}

// Clone returns a deep copy so callers can't mutate stored state.
func (a *Action) Clone() *Action {
	c := *a
	if a.CompletedAt != nil {
		ts := *a.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

var (
	kindsMu    sync.RWMutex
	priorities = map[Kind]int{
		KindSmall: 1,
		KindLarge: 2,
	}
)

// RegisterKind adds a new action kind or changes the priority of an existing one.
// Priority is stamped at enqueue time, so existing rows keep their old value.
func RegisterKind(k Kind, priority int) error {
	if strings.TrimSpace(string(k)) == "" {
		return fmt.Errorf("register kind: empty kind")
	}
	kindsMu.Lock()
	defer kindsMu.Unlock()
	priorities[k] = priority
	return nil
}

// PriorityOf returns the dispatch priority for k; lower is served first.
func PriorityOf(k Kind) (int, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	p, ok := priorities[k]
	return p, ok
}

// Kinds lists registered kinds, highest priority first.
func Kinds() []Kind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()

	out := make([]Kind, 0, len(priorities))
	for k := range priorities {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorities[out[i]], priorities[out[j]]
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := PriorityOf(k); !ok {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}

func (k Kind) Label() string {
	return strings.ToUpper(string(k))
}

func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "SYNCED"
	default:
		return strings.ToUpper(string(s))
	}
}

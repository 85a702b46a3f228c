package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Popie52/offlinesync/internal/clock"
	"github.com/Popie52/offlinesync/internal/model"
	"github.com/Popie52/offlinesync/internal/queue"
)

// FileActionStore keeps every action in one JSON document. Each mutation
// rewrites the document through a temp file and rename. Handles in this or
// other processes serialize on an advisory lock file next to the document.
type FileActionStore struct {
	path  string
	clock clock.Clock
	mu    sync.Mutex
	lock  *flock.Flock
}

type fileState struct {
	NextSeq int64           `json:"next_seq"`
	Actions []*model.Action `json:"actions"`
}

func NewFileActionStore(path string, opts ...Option) *FileActionStore {
	o := buildOptions(opts)
	return &FileActionStore{
		path:  path,
		clock: o.clock,
		lock:  flock.New(path + ".lock"),
	}
}

func (s *FileActionStore) Enqueue(_ context.Context, kind model.Kind, payload string) (*model.Action, error) {
	a, err := newAction(s.clock, kind, payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("enqueue action: lock: %w", err)
	}
	defer s.lock.Unlock()

	st, err := readState(s.path)
	if err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}

	st.NextSeq++
	a.Seq = st.NextSeq
	st.Actions = append(st.Actions, a)

	if err := writeState(s.path, st); err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}
	return a.Clone(), nil
}

func (s *FileActionStore) ListPending(_ context.Context) ([]*model.Action, error) {
	actions, err := s.snapshot()
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return pendingOrdered(actions), nil
}

func (s *FileActionStore) ListCompleted(_ context.Context) ([]*model.Action, error) {
	actions, err := s.snapshot()
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	return completedOrdered(actions), nil
}

func (s *FileActionStore) ListAll(_ context.Context) ([]*model.Action, error) {
	actions, err := s.snapshot()
	if err != nil {
		return nil, fmt.Errorf("list all: %w", err)
	}
	return append(pendingOrdered(actions), completedOrdered(actions)...), nil
}

func (s *FileActionStore) MarkCompleted(_ context.Context, id string) error {
	err := s.update(func(a *model.Action) bool {
		if a.ID != id || !a.IsPending() {
			return false
		}
		ts := s.clock.NowMillis()
		a.Status = model.StatusCompleted
		a.CompletedAt = &ts
		return true
	})
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", id, err)
	}
	return nil
}

func (s *FileActionStore) IncrementRetry(_ context.Context, id string) error {
	err := s.update(func(a *model.Action) bool {
		if a.ID != id || !a.IsPending() {
			return false
		}
		a.RetryCount++
		return true
	})
	if err != nil {
		return fmt.Errorf("increment retry %s: %w", id, err)
	}
	return nil
}

func (s *FileActionStore) RetryCountOf(ctx context.Context, id string) (int, error) {
	a, err := s.find(id)
	if err != nil {
		return 0, fmt.Errorf("retry count %s: %w", id, err)
	}
	if a == nil {
		return 0, nil
	}
	return a.RetryCount, nil
}

func (s *FileActionStore) Get(_ context.Context, id string) (*model.Action, error) {
	a, err := s.find(id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if a == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *FileActionStore) Stats(_ context.Context, maxRetry int) (Stats, error) {
	actions, err := s.snapshot()
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	var st Stats
	for _, a := range actions {
		switch {
		case a.IsCompleted():
			st.Completed++
		default:
			st.Pending++
			if a.Exhausted(maxRetry) {
				st.Exhausted++
			}
		}
	}
	return st, nil
}

func (s *FileActionStore) Close() error { return s.lock.Close() }

func (s *FileActionStore) snapshot() ([]*model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	defer s.lock.Unlock()

	st, err := readState(s.path)
	if err != nil {
		return nil, err
	}
	return st.Actions, nil
}

func (s *FileActionStore) find(id string) (*model.Action, error) {
	actions, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

// update applies fn to rows until it reports a change, then persists.
// Nothing is written when no row matched.
func (s *FileActionStore) update(fn func(a *model.Action) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer s.lock.Unlock()

	st, err := readState(s.path)
	if err != nil {
		return err
	}

	changed := false
	for _, a := range st.Actions {
		if fn(a) {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}
	return writeState(s.path, st)
}

func pendingOrdered(actions []*model.Action) []*model.Action {
	out := []*model.Action{}
	for _, a := range actions {
		if a.IsPending() {
			out = append(out, a)
		}
	}
	return queue.Ordered(out)
}

func completedOrdered(actions []*model.Action) []*model.Action {
	out := []*model.Action{}
	for _, a := range actions {
		if a.IsCompleted() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].CompletedAt != *out[j].CompletedAt {
			return *out[i].CompletedAt > *out[j].CompletedAt
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Helpers
func readState(path string) (*fileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileState{Actions: []*model.Action{}}, nil
		}
		return nil, err
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.Actions == nil {
		st.Actions = []*model.Action{}
	}
	return &st, nil
}

func writeState(path string, st *fileState) error {
	data, err := json.MarshalIndent(st, "", " ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

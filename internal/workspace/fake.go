package workspace

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Driver for component tests that don't need a real
// jj binary on PATH. It records calls so tests can assert on sequencing.
type Fake struct {
	mu        sync.Mutex
	created   map[string]Handle
	forgotten map[string]bool

	// RebaseResult/MergeResult let a test script a specific outcome per
	// workspace name; absent entries default to Clean.
	RebaseResult map[string]RebaseOutcome
	MergeResult  map[string]MergeOutcome
	FailCreate   map[string]error

	Calls []string
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{
		created:      make(map[string]Handle),
		forgotten:    make(map[string]bool),
		RebaseResult: make(map[string]RebaseOutcome),
		MergeResult:  make(map[string]MergeOutcome),
		FailCreate:   make(map[string]error),
	}
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) Create(ctx context.Context, name string, parent string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create:" + name)
	if err, ok := f.FailCreate[name]; ok {
		return Handle{}, err
	}
	if _, exists := f.created[name]; exists {
		return Handle{}, fmt.Errorf("%s: %w", name, ErrAlreadyExists)
	}
	h := Handle{Name: name, Path: "/fake/workspaces/" + name}
	f.created[name] = h
	return h, nil
}

func (f *Fake) Forget(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("forget:" + name)
	f.forgotten[name] = true
	return nil
}

func (f *Fake) RemoveDir(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove_dir:" + path)
	return nil
}

func (f *Fake) Status(ctx context.Context, name string) (Status, error) {
	return Status{Branch: name, Dirty: false}, nil
}

func (f *Fake) Rebase(ctx context.Context, name string, onto string) (RebaseOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("rebase:" + name + "->" + onto)
	if r, ok := f.RebaseResult[name]; ok {
		return r, nil
	}
	return RebaseOutcome{Clean: true}, nil
}

func (f *Fake) Merge(ctx context.Context, source string, into string) (MergeOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("merge:" + source + "->" + into)
	if r, ok := f.MergeResult[source]; ok {
		return r, nil
	}
	return MergeOutcome{Clean: true}, nil
}

func (f *Fake) Push(ctx context.Context, bookmark string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("push:" + bookmark)
	return nil
}

// IsForgotten reports whether Forget was called for name.
func (f *Fake) IsForgotten(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forgotten[name]
}

var _ Driver = (*Fake)(nil)
var _ Driver = (*JJDriver)(nil)

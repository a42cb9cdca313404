package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finscope/internal/core"
)

type fakeSource struct {
	mu      sync.Mutex
	txs     []core.Transaction
	tree    core.CategoryTree
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs, f.err
}

func (f *fakeSource) ReadCategoryTree(ctx context.Context) (core.CategoryTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree, nil
}

func sample() []core.Transaction {
	return []core.Transaction{{
		ID: "1", PostedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(-10), MainCategory: core.Expenses, Category: "Food",
	}}
}

func TestCurrentBeforeLoad(t *testing.T) {
	s := NewStore(&fakeSource{}, "memory", nil)
	if _, err := s.Current(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestReloadBumpsVersionAndNotifies(t *testing.T) {
	src := &fakeSource{txs: sample(), tree: core.CategoryTree{{ID: "t-exp", Name: "EXPENSES"}}}
	s := NewStore(src, "memory", nil)

	var seen []uint64
	s.Subscribe(func(ds Dataset) { seen = append(seen, ds.Version) })

	for i := 0; i < 2; i++ {
		if _, err := s.Reload(context.Background()); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	ds, err := s.Current()
	if err != nil || ds.Version != 2 || len(ds.Transactions) != 1 || len(ds.Tree) != 1 {
		t.Fatalf("unexpected current dataset %+v, %v", ds, err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("listeners saw %v", seen)
	}
}

func TestReloadFailureKeepsPrevious(t *testing.T) {
	src := &fakeSource{txs: sample()}
	s := NewStore(src, "memory", nil)
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	src.mu.Lock()
	src.err = errors.New("backend down")
	src.mu.Unlock()
	if _, err := s.Reload(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
	if ds, _ := s.Current(); ds.Version != 1 {
		t.Fatalf("failed reload must keep version 1, got %d", ds.Version)
	}
}

func TestReloadRejectsInvalidInput(t *testing.T) {
	src := &fakeSource{txs: []core.Transaction{{ID: "x", MainCategory: core.Expenses}}}
	s := NewStore(src, "memory", nil)
	_, err := s.Reload(context.Background())
	if !errors.Is(err, core.ErrZeroDate) {
		t.Fatalf("expected ErrZeroDate, got %v", err)
	}

	src.txs = sample()
	src.tree = core.CategoryTree{{ID: "a"}, {ID: "a"}}
	if _, err := s.Reload(context.Background()); !errors.Is(err, core.ErrDuplicateNodeID) {
		t.Fatalf("expected ErrDuplicateNodeID, got %v", err)
	}
}

func TestConcurrentReloadsShareOneLoad(t *testing.T) {
	src := &fakeSource{txs: sample(), entered: make(chan struct{}, 8), release: make(chan struct{})}
	s := NewStore(src, "memory", nil)

	var wg sync.WaitGroup
	versions := make([]uint64, 4)
	for i := range versions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := s.Reload(context.Background())
			if err != nil {
				t.Errorf("reload: %v", err)
				return
			}
			versions[i] = ds.Version
		}(i)
	}

	<-src.entered
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected one shared load, got %d", n)
	}
	for _, v := range versions {
		if v != 1 {
			t.Fatalf("all callers should observe version 1, got %v", versions)
		}
	}
}

func TestCancelledCallerDoesNotFailSharedReload(t *testing.T) {
	src := &fakeSource{txs: sample(), entered: make(chan struct{}, 8), release: make(chan struct{})}
	s := NewStore(src, "memory", nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.Reload(ctx)
		first <- err
	}()
	<-src.entered

	second := make(chan error, 1)
	go func() {
		_, err := s.Reload(context.Background())
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(src.release)

	if err := <-second; err != nil {
		t.Fatalf("shared reload failed: %v", err)
	}
	ds, err := s.Current()
	if err != nil || ds.Version < 1 {
		t.Fatalf("expected a loaded dataset, got %+v, %v", ds, err)
	}
}

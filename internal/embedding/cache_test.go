package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeProvider struct {
	name string
	dim  int
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Name() string   { return f.name }

func TestCache_SameInstanceOnRepeatGet(t *testing.T) {
	var loads atomic.Int32
	cache := NewCache(func(_ context.Context, model string) (Provider, error) {
		loads.Add(1)
		return &fakeProvider{name: model, dim: 384}, nil
	})

	first, err := cache.Get(context.Background(), "minilm")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Get(context.Background(), "minilm")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("repeat Get returned a different provider instance")
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times, want 1", n)
	}
}

func TestCache_ConcurrentFirstLoadsCollapse(t *testing.T) {
	var loads atomic.Int32
	started := make(chan struct{})
	cache := NewCache(func(_ context.Context, model string) (Provider, error) {
		loads.Add(1)
		<-started // hold the load until every goroutine is queued
		return &fakeProvider{name: model, dim: 8}, nil
	})

	const callers = 32
	providers := make([]Provider, callers)
	var ready, done sync.WaitGroup
	ready.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			p, err := cache.Get(context.Background(), "shared-model")
			if err != nil {
				t.Error(err)
				return
			}
			providers[i] = p
		}(i)
	}
	ready.Wait()
	close(started)
	done.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times under concurrent first access, want 1", n)
	}
	for i := 1; i < callers; i++ {
		if providers[i] != providers[0] {
			t.Fatalf("caller %d received a different instance", i)
		}
	}
}

func TestCache_DistinctModelsDistinctProviders(t *testing.T) {
	cache := NewCache(func(_ context.Context, model string) (Provider, error) {
		return &fakeProvider{name: model, dim: 4}, nil
	})

	a, err := cache.Get(context.Background(), "model-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := cache.Get(context.Background(), "model-b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("distinct identifiers returned the same provider")
	}

	loaded := cache.Loaded()
	if len(loaded) != 2 || loaded[0] != "model-a" || loaded[1] != "model-b" {
		t.Errorf("Loaded() = %v, want [model-a model-b]", loaded)
	}
}

func TestCache_LoadFailureNotMemoized(t *testing.T) {
	var loads atomic.Int32
	boom := errors.New("model server down")
	cache := NewCache(func(_ context.Context, model string) (Provider, error) {
		if loads.Add(1) == 1 {
			return nil, boom
		}
		return &fakeProvider{name: model, dim: 4}, nil
	})

	_, err := cache.Get(context.Background(), "flaky")
	var loadErr *ProviderLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want *ProviderLoadError", err)
	}
	if loadErr.Model != "flaky" {
		t.Errorf("ProviderLoadError.Model = %q, want flaky", loadErr.Model)
	}
	if !errors.Is(err, boom) {
		t.Error("ProviderLoadError should wrap the underlying cause")
	}
	if len(cache.Loaded()) != 0 {
		t.Error("failed load must not appear in Loaded()")
	}

	// A later call reflects the changed world, it is not pinned to the failure.
	if _, err := cache.Get(context.Background(), "flaky"); err != nil {
		t.Errorf("second Get after transient failure: %v", err)
	}
}

func TestCache_LoadedEmpty(t *testing.T) {
	cache := NewCache(func(_ context.Context, model string) (Provider, error) {
		return nil, fmt.Errorf("unused")
	})
	if got := cache.Loaded(); len(got) != 0 {
		t.Errorf("Loaded() on fresh cache = %v, want empty", got)
	}
}

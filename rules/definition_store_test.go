package rules

import (
	"context"
	"sync"
	"testing"
)

func TestInMemoryDefinitionStore_Versions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryDefinitionStore()

	for want := 1; want <= 3; want++ {
		version, err := store.Save(ctx, dishDefinition())
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if version != want {
			t.Errorf("Save() version = %d, want %d", version, want)
		}
	}

	def, err := store.Get(ctx, "dishDecision")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if def.Version != 3 {
		t.Errorf("Get() version = %d, want 3", def.Version)
	}
}

func TestInMemoryDefinitionStore_ListActive(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryDefinitionStore()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		def := dishDefinition()
		def.Name = name
		if _, err := store.Save(ctx, def); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
	}
	if err := store.Delete(ctx, "mid"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	defs, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Errorf("ListActive() = %v, want alpha and zeta", defs)
	}
}

func TestInMemoryDefinitionStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryDefinitionStore()

	if err := store.Delete(ctx, "dishDecision"); !IsNotFound(err) {
		t.Errorf("Delete() of unknown table should be NotFound, got %v", err)
	}

	store.Save(ctx, dishDefinition())
	if err := store.Delete(ctx, "dishDecision"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(ctx, "dishDecision"); !IsNotFound(err) {
		t.Errorf("Get() after Delete() should be NotFound, got %v", err)
	}

	version, _ := store.Save(ctx, dishDefinition())
	if version != 2 {
		t.Errorf("re-publishing should continue the history, got version %d", version)
	}
}

func TestInMemoryDefinitionStore_ConcurrentSave(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryDefinitionStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Save(ctx, dishDefinition())
		}()
	}
	wg.Wait()

	def, err := store.Get(ctx, "dishDecision")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if def.Version != 20 {
		t.Errorf("version = %d, want 20", def.Version)
	}
}

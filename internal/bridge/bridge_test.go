package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPromiseSettlesOnce(t *testing.T) {
	p := NewPromise()
	if !p.Resolve(Map{"ok": true}) {
		t.Fatal("expected first resolve to settle the promise")
	}
	if p.Reject("ERROR", "late") {
		t.Fatal("expected reject after resolve to be ignored")
	}
	if p.Resolve(Map{"ok": false}) {
		t.Fatal("expected second resolve to be ignored")
	}

	value, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("expected resolved value, got %v", err)
	}
	if !value.Bool("ok") {
		t.Fatalf("expected first value to win, got %v", value)
	}
}

func TestPromiseRejection(t *testing.T) {
	p := NewPromise()
	p.Reject("ERROR", "model unavailable")

	_, err := p.Await(context.Background())
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected *Rejection, got %T", err)
	}
	if rejection.Code != "ERROR" || rejection.Message != "model unavailable" {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}
}

func TestPromiseConcurrentSettlement(t *testing.T) {
	p := NewPromise()
	var wg sync.WaitGroup
	settled := make(chan bool, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			settled <- p.Resolve(Map{})
		}()
		go func() {
			defer wg.Done()
			settled <- p.Reject("ERROR", "x")
		}()
	}
	wg.Wait()
	close(settled)

	count := 0
	for ok := range settled {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one settlement, got %d", count)
	}
}

func TestPromiseAwaitHonoursContext(t *testing.T) {
	p := NewPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := p.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	p.Resolve(Map{"late": true})
	value, err := p.Await(context.Background())
	if err != nil || !value.Bool("late") {
		t.Fatalf("expected promise to settle after abandoned await, got %v %v", value, err)
	}
}

func TestMapBool(t *testing.T) {
	m := Map{"yes": true, "text": "true"}
	if !m.Bool("yes") {
		t.Fatal("expected true")
	}
	if m.Bool("text") || m.Bool("missing") {
		t.Fatal("expected non-bool and missing keys to read false")
	}
}

type namedModule string

func (n namedModule) Name() string { return string(n) }

type staticPackage struct {
	modules []NativeModule
}

func (p staticPackage) CreateNativeModules(*AppContext) []NativeModule { return p.modules }
func (p staticPackage) CreateViewManagers(*AppContext) []ViewManager   { return nil }

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry(nil, staticPackage{modules: []NativeModule{namedModule("B"), namedModule("A")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := r.ModuleNames()
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("unexpected module names %v", names)
	}

	m, err := Lookup[namedModule](r, "A")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if m.Name() != "A" {
		t.Fatalf("unexpected module %v", m)
	}

	if _, err := Lookup[namedModule](r, "C"); !errors.Is(err, ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
	if _, err := Lookup[*Promise](r, "A"); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&AppContext{},
		staticPackage{modules: []NativeModule{namedModule("A")}},
		staticPackage{modules: []NativeModule{namedModule("A")}},
	)
	if err == nil {
		t.Fatal("expected duplicate module error")
	}
}

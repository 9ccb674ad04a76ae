package models

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatchReportsCatalogModels(t *testing.T) {
	m := newTestManager(t)
	model, _ := Lookup("base.en")

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- m.Watch(ctx, func(e Event) { events <- e })
	}()

	// The watcher starts asynchronously; keep touching the file until it
	// reports the model.
	waitFor := func(present bool, touch func()) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			touch()
			select {
			case e := <-events:
				if e.Model.Name == model.Name && e.Present == present {
					return
				}
			case <-time.After(50 * time.Millisecond):
			case <-deadline:
				t.Fatalf("no event with Present=%v", present)
			}
		}
	}

	waitFor(true, func() {
		os.MkdirAll(m.Dir, 0755)
		os.WriteFile(m.Path(model), []byte("weights"), 0644)
		os.WriteFile(m.Path(model)+".tmp", []byte("ignored"), 0644)
	})
	waitFor(false, func() {
		os.Remove(m.Path(model))
	})

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

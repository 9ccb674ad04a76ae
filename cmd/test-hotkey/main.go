// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press Ctrl+Shift+R to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode hold|toggle] [--keys ctrl+shift+r]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/micscribe/internal/hotkey"
)

func main() {
	mode := flag.String("mode", "hold", "hotkey mode: hold or toggle")
	combo := flag.String("keys", "ctrl+shift+r", "key combo, joined with +")
	flag.Parse()

	keys := strings.Split(strings.ToLower(*combo), "+")
	fmt.Printf("Listening for %s in %q mode...\n", *combo, *mode)
	fmt.Println("Press Ctrl+C to exit.")

	// Toggle mode tracks its own state here; micscribe asks the recorder.
	listener := hotkey.NewListener(keys, *mode, nil)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			switch ev.Type {
			case hotkey.EventStart:
				fmt.Println(">>> START (recording)")
			case hotkey.EventStop:
				fmt.Println("<<< STOP  (stopped)")
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}

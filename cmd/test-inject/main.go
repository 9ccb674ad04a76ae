// Command test-inject is a manual test for text injection.
// It waits 3 seconds, then types or pastes test text built from
// transcription segments, the same way micscribe delivers results.
// Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--method type|paste]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/micscribe/internal/inject"
	"github.com/chaz8081/micscribe/internal/transcribe"
)

func main() {
	method := flag.String("method", "type", "inject method: type, paste or none")
	flag.Parse()

	segments := []transcribe.Segment{
		{Text: " Hello from", End: 600 * time.Millisecond},
		{Text: " micscribe!", Start: 600 * time.Millisecond, End: 1200 * time.Millisecond},
	}
	text := transcribe.Text(segments)

	fmt.Printf("Will inject %q using %q method in 3 seconds...\n", text, *method)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	inj := inject.NewInjector(*method)
	if err := inject.InjectSegments(inj, segments); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("\nDone!")
}

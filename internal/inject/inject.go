// Package inject provides text injection into the active application
// using robotgo for keystroke simulation or clipboard paste.
package inject

import (
	"fmt"
	"runtime"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/micscribe/internal/transcribe"
)

// TextInjector delivers transcribed text somewhere.
type TextInjector interface {
	Inject(text string) error
}

// Compile-time interface satisfaction check.
var _ TextInjector = (*Injector)(nil)

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method string // "type", "paste" or "none"
}

// NewInjector creates an Injector with the given method.
// method must be "type" (keystroke simulation), "paste" (clipboard) or
// "none" (discard; the caller prints the text instead).
func NewInjector(method string) *Injector {
	return &Injector{method: method}
}

// InjectSegments joins segments and injects the result.
func InjectSegments(inj TextInjector, segments []transcribe.Segment) error {
	return inj.Inject(transcribe.Text(segments))
}

// Inject sends text to the active application using the configured method.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case "none":
		return nil
	case "paste":
		return inj.paste(text)
	default: // "type"
		return inj.typeText(text)
	}
}

// typeText simulates individual keystrokes. Preserves clipboard contents
// but is slower for long text.
func (inj *Injector) typeText(text string) error {
	robotgo.Type(text)
	return nil
}

// pasteModifier is the platform's paste shortcut modifier.
func pasteModifier() string {
	if runtime.GOOS == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// paste copies text to clipboard and pastes it with Cmd+V or Ctrl+V.
// Faster for long text but overwrites the clipboard.
func (inj *Injector) paste(text string) error {
	// Save current clipboard
	prev, _ := robotgo.ReadAll()

	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	mod := pasteModifier()
	if err := robotgo.KeyTap("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	// Restore previous clipboard (best effort)
	_ = robotgo.WriteAll(prev)

	return nil
}

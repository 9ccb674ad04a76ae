package models

import "fmt"

// Gate checks a single catalog model before each transcription.
type Gate struct {
	m    *Manager
	name string
}

// Gate returns a readiness check for the named model.
func (m *Manager) Gate(name string) *Gate {
	return &Gate{m: m, name: name}
}

// Path returns the model file the gate checks, or "" for an unknown name.
func (g *Gate) Path() string {
	model, err := Lookup(g.name)
	if err != nil {
		return ""
	}
	return g.m.Path(model)
}

// Ready reports whether the model file is present.
func (g *Gate) Ready() error {
	model, err := Lookup(g.name)
	if err != nil {
		return err
	}
	if !g.m.IsDownloaded(model) {
		return fmt.Errorf("%w: %s not found at %s (run micscribe -models)", ErrModelMissing, model.Name, g.m.Path(model))
	}
	return nil
}

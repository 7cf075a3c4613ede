// Package scenario loads simulator scenario files: controller geometry,
// interrupt sources, and an ordered event list to replay.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/metalbus/plic/plic"
)

// Scenario is the complete description of one simulation run.
type Scenario struct {
	Name string `yaml:"name"`

	// Harts is the number of interrupt targets. Defaults to 1.
	Harts int `yaml:"harts"`

	// Geometry overrides the default controller geometry.
	Geometry *Geometry `yaml:"geometry,omitempty"`

	// Thresholds holds one priority threshold per hart. Missing entries
	// default to 0 (nothing masked).
	Thresholds []uint32 `yaml:"thresholds,omitempty"`

	Sources []Source `yaml:"sources"`
	Events  []Event  `yaml:"events"`
}

// Geometry overrides the implemented source and priority counts. The
// register map itself stays at the default layout.
type Geometry struct {
	NumSources    uint32 `yaml:"num_sources"`
	NumPriorities uint32 `yaml:"num_priorities"`
}

// Source declares one interrupt source wired into the controller.
type Source struct {
	Name     string `yaml:"name"`
	ID       uint32 `yaml:"id"`
	Priority uint32 `yaml:"priority"`

	// Hart is the target the source is enabled for. Defaults to hart 0.
	Hart int `yaml:"hart"`
}

// Event is one step of the replay. Exactly one field is set.
type Event struct {
	// Raise asserts the named source's input line.
	Raise string `yaml:"raise,omitempty"`
	// Lower deasserts the named source's input line.
	Lower string `yaml:"lower,omitempty"`
	// Trap takes an external-interrupt trap on the given hart.
	Trap *int `yaml:"trap,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: reading %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: parsing %s: %w", path, err)
	}

	if s.Harts == 0 {
		s.Harts = 1
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Layout returns the controller layout the scenario runs against.
func (s *Scenario) Layout() plic.Layout {
	layout := plic.DefaultLayout()
	if s.Geometry != nil {
		if s.Geometry.NumSources != 0 {
			layout.NumSources = s.Geometry.NumSources
		}
		if s.Geometry.NumPriorities != 0 {
			layout.NumPriorities = s.Geometry.NumPriorities
		}
	}
	return layout
}

// Validate checks internal consistency: source names are unique and in
// range, events refer to declared sources and valid harts.
func (s *Scenario) Validate() error {
	layout := s.Layout()
	if err := layout.Validate(); err != nil {
		return err
	}
	if s.Harts < 1 {
		return fmt.Errorf("scenario: hart count %d out of range", s.Harts)
	}
	if len(s.Thresholds) > s.Harts {
		return fmt.Errorf("scenario: %d thresholds for %d harts", len(s.Thresholds), s.Harts)
	}

	names := make(map[string]Source, len(s.Sources))
	ids := make(map[uint32]string, len(s.Sources))
	for _, src := range s.Sources {
		if src.Name == "" {
			return fmt.Errorf("scenario: source %d has no name", src.ID)
		}
		if _, dup := names[src.Name]; dup {
			return fmt.Errorf("scenario: duplicate source name %q", src.Name)
		}
		if src.ID == 0 || src.ID > layout.NumSources {
			return fmt.Errorf("scenario: source %q id %d out of range [1, %d]", src.Name, src.ID, layout.NumSources)
		}
		if other, dup := ids[src.ID]; dup {
			return fmt.Errorf("scenario: sources %q and %q share id %d", other, src.Name, src.ID)
		}
		if src.Hart < 0 || src.Hart >= s.Harts {
			return fmt.Errorf("scenario: source %q targets hart %d of %d", src.Name, src.Hart, s.Harts)
		}
		names[src.Name] = src
		ids[src.ID] = src.Name
	}

	for i, ev := range s.Events {
		set := 0
		if ev.Raise != "" {
			set++
			if _, ok := names[ev.Raise]; !ok {
				return fmt.Errorf("scenario: event %d raises unknown source %q", i, ev.Raise)
			}
		}
		if ev.Lower != "" {
			set++
			if _, ok := names[ev.Lower]; !ok {
				return fmt.Errorf("scenario: event %d lowers unknown source %q", i, ev.Lower)
			}
		}
		if ev.Trap != nil {
			set++
			if *ev.Trap < 0 || *ev.Trap >= s.Harts {
				return fmt.Errorf("scenario: event %d traps on hart %d of %d", i, *ev.Trap, s.Harts)
			}
		}
		if set != 1 {
			return fmt.Errorf("scenario: event %d must set exactly one of raise, lower, trap", i)
		}
	}
	return nil
}

// SourceByName returns the declared source with the given name.
func (s *Scenario) SourceByName(name string) (Source, bool) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}

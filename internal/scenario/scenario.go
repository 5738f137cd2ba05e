// Package scenario defines the practice scenarios a learner can start and
// loads them from YAML definition files.
package scenario

import (
	"errors"
	"fmt"
)

// Difficulty is a coarse learner-level band for a scenario.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// IsValid reports whether d is a recognised difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Scenario is a single roleplay setting: who the character is, what the
// learner should achieve, and how the conversation opens.
type Scenario struct {
	// ID is the stable scenario identifier, referenced by conversations and
	// the completed-scenario progress set.
	ID string `yaml:"id"`

	// Title is the display name.
	Title string `yaml:"title"`

	// Description is a short blurb shown when browsing scenarios.
	Description string `yaml:"description"`

	// Difficulty bands the scenario by learner level.
	Difficulty Difficulty `yaml:"difficulty"`

	// Objective is what the learner must accomplish, in English.
	Objective string `yaml:"objective"`

	// Persona describes the character the model plays.
	Persona string `yaml:"persona"`

	// OpeningLine is an optional first assistant message, in Mandarin, that
	// seeds the conversation before the learner speaks.
	OpeningLine string `yaml:"openingLine"`
}

// Validate checks a [Scenario] for required fields.
//
// Rules:
//   - ID, Title, Objective, and Persona must be non-empty.
//   - Difficulty, when set, must be recognised.
func Validate(s Scenario) error {
	var errs []error

	if s.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if s.Title == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if s.Objective == "" {
		errs = append(errs, errors.New("objective must not be empty"))
	}
	if s.Persona == "" {
		errs = append(errs, errors.New("persona must not be empty"))
	}
	if s.Difficulty != "" && !s.Difficulty.IsValid() {
		errs = append(errs, fmt.Errorf("difficulty %q is not recognised", s.Difficulty))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

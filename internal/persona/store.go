// Package persona loads the fixed set of audience identities a simulation
// draws its agents from. The store is read-only for the duration of a run.
package persona

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults returns the built-in persona trio used when no persona file is
// supplied. Returned as a fresh slice so callers cannot mutate the source.
func Defaults() []schemas.Persona {
	return []schemas.Persona{
		{
			ID:              "vegan-mom",
			Name:            "Vegan Mom",
			Interests:       []string{"animal welfare", "environment", "healthy food"},
			Tone:            "positive and supportive",
			ReactionBias:    schemas.BiasPositive,
			EngagementLevel: 0.8,
		},
		{
			ID:              "beauty-analyst",
			Name:            "Beauty Analyst",
			Interests:       []string{"skincare", "ingredients", "product reviews"},
			Tone:            "curious and analytical",
			ReactionBias:    schemas.BiasNeutral,
			EngagementLevel: 0.5,
		},
		{
			ID:              "cynical-memer",
			Name:            "Cynical Memer",
			Interests:       []string{"memes", "authenticity", "pop culture"},
			Tone:            "dry and skeptical",
			ReactionBias:    schemas.BiasNegative,
			EngagementLevel: 0.3,
		},
	}
}

// personaFile accepts either a bare array of personas or an object wrapping
// them under a "personas" key.
type personaFile struct {
	Personas []schemas.Persona `json:"personas"`
}

// Load reads personas from path. An empty path yields the built-in defaults;
// an explicit path that is missing or malformed is a configuration error.
func Load(path string) ([]schemas.Persona, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schemas.NewConfigError("persona_file", fmt.Sprintf("cannot read %s: %v", path, err))
	}

	var personas []schemas.Persona
	if err := json.Unmarshal(data, &personas); err != nil {
		var wrapped personaFile
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, schemas.NewConfigError("persona_file", fmt.Sprintf("%s is not valid persona JSON: %v", path, err))
		}
		personas = wrapped.Personas
	}

	if len(personas) == 0 {
		return nil, schemas.NewConfigError("persona_file", fmt.Sprintf("%s contains no personas", path))
	}

	for i := range personas {
		p := &personas[i]
		if p.ID == "" {
			if p.Name == "" {
				return nil, schemas.NewConfigError("persona_file",
					fmt.Sprintf("persona entry %d has neither id nor name", i))
			}
			p.ID = slugify(p.Name)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		switch p.ReactionBias {
		case schemas.BiasPositive, schemas.BiasNeutral, schemas.BiasNegative:
		case "":
			p.ReactionBias = schemas.BiasNeutral
		default:
			return nil, schemas.NewConfigError("persona_file",
				fmt.Sprintf("persona %s has unknown reactionBias %q", p.ID, p.ReactionBias))
		}
		if p.EngagementLevel <= 0 || p.EngagementLevel > 1 {
			p.EngagementLevel = 0.5
		}
	}

	return personas, nil
}

// Choose returns the persona with the given id, or the first persona when the
// id is empty or unknown.
func Choose(personas []schemas.Persona, targetID string) (schemas.Persona, error) {
	if len(personas) == 0 {
		return schemas.Persona{}, schemas.NewConfigError("personas", "no personas available")
	}
	if targetID == "" {
		return personas[0], nil
	}
	for _, p := range personas {
		if p.ID == targetID {
			return p, nil
		}
	}
	return personas[0], nil
}

// Cycle assigns personas round-robin to n agents.
func Cycle(personas []schemas.Persona, n int) []schemas.Persona {
	out := make([]schemas.Persona, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, personas[i%len(personas)])
	}
	return out
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

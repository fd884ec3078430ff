// Package stage defines the static catalog of pipeline stages the dashboard can run.
package stage

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Group partitions the catalog into independently runnable utility stages and
// the ordered production pipeline.
type Group string

const (
	// GroupUtility stages run on demand, in any order.
	GroupUtility Group = "utility"
	// GroupPipeline stages form the sequential production pipeline, in catalog order.
	GroupPipeline Group = "pipeline"
)

// Descriptor identifies one runnable stage. ScriptRef is an opaque handle the
// backend supervisor resolves to an external program; the orchestrator never
// inspects it.
type Descriptor struct {
	ID        string `json:"id"         validate:"required"`
	Name      string `json:"name"       validate:"required"`
	ScriptRef string `json:"script_ref" validate:"required"`
	Group     Group  `json:"group"      validate:"required,oneof=utility pipeline"`
}

// Catalog is the immutable stage registry. It is built once at startup and
// never mutated afterwards; lookups by id are O(1).
type Catalog struct {
	stages []Descriptor
	byID   map[string]int
}

func NewCatalog(stages []Descriptor) (*Catalog, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	byID := make(map[string]int, len(stages))

	for i, descriptor := range stages {
		if err := validate.Struct(descriptor); err != nil {
			return nil, fmt.Errorf("invalid stage descriptor %q: %w", descriptor.ID, err)
		}

		if _, exists := byID[descriptor.ID]; exists {
			return nil, fmt.Errorf("duplicate stage id %q", descriptor.ID)
		}

		byID[descriptor.ID] = i
	}

	return &Catalog{stages: stages, byID: byID}, nil
}

// List returns the descriptors of a group in catalog order.
func (c *Catalog) List(group Group) []Descriptor {
	listed := make([]Descriptor, 0, len(c.stages))

	for _, descriptor := range c.stages {
		if descriptor.Group == group {
			listed = append(listed, descriptor)
		}
	}

	return listed
}

// Pipeline returns the ordered production pipeline.
func (c *Catalog) Pipeline() []Descriptor {
	return c.List(GroupPipeline)
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []Descriptor {
	all := make([]Descriptor, len(c.stages))
	copy(all, c.stages)

	return all
}

func (c *Catalog) Get(id string) (Descriptor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Descriptor{}, false
	}

	return c.stages[i], true
}

func (c *Catalog) Len() int {
	return len(c.stages)
}

// Default returns the compiled-in autofx catalog: the five production pipeline
// stages plus the standalone utilities, mirroring the scripts the supervisor
// ships with.
func Default() *Catalog {
	catalog, err := NewCatalog([]Descriptor{
		{ID: "script", Name: "Script Retrieval", ScriptRef: "baixa_script.py", Group: GroupPipeline},
		{ID: "srt", Name: "Subtitle Generation", ScriptRef: "auto_srt.py", Group: GroupPipeline},
		{ID: "suggestions", Name: "Image Suggestions", ScriptRef: "generate_suggestions.py", Group: GroupPipeline},
		{ID: "images", Name: "Image Generation", ScriptRef: "generate_images.py", Group: GroupPipeline},
		{ID: "render", Name: "Render", ScriptRef: "make_and_render.py", Group: GroupPipeline},

		{ID: "tts", Name: "Polly TTS", ScriptRef: "polly_tts.py", Group: GroupUtility},
		{ID: "clean", Name: "Clean Bases", ScriptRef: "clean_bases.py", Group: GroupUtility},
		{ID: "comments", Name: "Comment Scraper", ScriptRef: "comments.py", Group: GroupUtility},
		{ID: "channel-info", Name: "Channel Info", ScriptRef: "channel_info.py", Group: GroupUtility},
		{ID: "profiles", Name: "Profile Generator", ScriptRef: "profile_generator.py", Group: GroupUtility},
		{ID: "arrange", Name: "Arrange Lines", ScriptRef: "arrange_lines.py", Group: GroupUtility},
		{ID: "global-suggestions", Name: "Global Suggestions", ScriptRef: "suggestion_by_global.py", Group: GroupUtility},
	})
	if err != nil {
		panic(fmt.Errorf("default catalog is invalid: %w", err))
	}

	return catalog
}

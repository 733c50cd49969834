package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Placeholder is a template token such as {KEYWORD} together with a short
// description shown next to the editor.
type Placeholder struct {
	Token       string `yaml:"token" json:"token"`
	Description string `yaml:"description" json:"description"`
}

// Workflow describes one generation mode and the placeholders its prompt
// template must keep.
type Workflow struct {
	ID       int           `yaml:"id" json:"id"`
	Slug     string        `yaml:"slug" json:"slug"`
	Name     string        `yaml:"name" json:"name"`
	Steps    int           `yaml:"steps" json:"steps"`
	Required []Placeholder `yaml:"required" json:"required"`
	// PendingReview marks a required set that product has not signed off.
	PendingReview bool `yaml:"pending_review" json:"pending_review"`
}

type Workflows struct {
	byID map[int]Workflow
}

type workflowsFile struct {
	Workflows []Workflow `yaml:"workflows"`
}

func NewWorkflows(defs []Workflow) (*Workflows, error) {
	w := &Workflows{byID: make(map[int]Workflow, len(defs))}
	for _, d := range defs {
		if d.ID <= 0 {
			return nil, fmt.Errorf("workflow %q: id must be positive", d.Slug)
		}
		if _, dup := w.byID[d.ID]; dup {
			return nil, fmt.Errorf("workflow %d defined twice", d.ID)
		}
		seen := make(map[string]bool, len(d.Required))
		for _, p := range d.Required {
			if p.Token == "" {
				return nil, fmt.Errorf("workflow %d: empty placeholder token", d.ID)
			}
			if seen[p.Token] {
				return nil, fmt.Errorf("workflow %d: placeholder %s listed twice", d.ID, p.Token)
			}
			seen[p.Token] = true
		}
		w.byID[d.ID] = d
	}
	return w, nil
}

// LoadWorkflows reads workflow definitions from a YAML file. An empty path
// yields the built-in definitions.
func LoadWorkflows(path string) (*Workflows, error) {
	if path == "" {
		return NewWorkflows(DefaultWorkflows())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflows file: %w", err)
	}
	var f workflowsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse workflows file: %w", err)
	}
	if len(f.Workflows) == 0 {
		return nil, fmt.Errorf("workflows file %s defines no workflows", path)
	}
	return NewWorkflows(f.Workflows)
}

func (w *Workflows) Get(id int) (Workflow, bool) {
	d, ok := w.byID[id]
	return d, ok
}

// Required returns the placeholder tokens a template for the workflow must
// contain.
func (w *Workflows) Required(id int) ([]string, bool) {
	d, ok := w.byID[id]
	if !ok {
		return nil, false
	}
	tokens := make([]string, len(d.Required))
	for i, p := range d.Required {
		tokens[i] = p.Token
	}
	return tokens, true
}

func (w *Workflows) All() []Workflow {
	out := make([]Workflow, 0, len(w.byID))
	for _, d := range w.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func DefaultWorkflows() []Workflow {
	return []Workflow{
		{
			ID:    1,
			Slug:  "create",
			Name:  "New SEO article",
			Steps: 4,
			Required: []Placeholder{
				{"{DOMAIN}", "Business domain"},
				{"{KEYWORD}", "Main keyword"},
				{"{GUIDELINE}", "User brief"},
				{"{SITE_URL}", "Site URL"},
				{"{CONTENT_TONE}", "Content tone"},
				{"{TARGET_AUDIENCE}", "Target audience"},
				{"{MAIN_TOPICS}", "Main topics"},
				{"{SEO_OPPORTUNITIES}", "SEO opportunities"},
				{"{CONTENT_GAPS}", "Content gaps"},
				{"{CONTENT_STRATEGY}", "Content strategy"},
				{"{KEYWORD_OPPORTUNITIES}", "Suggested keywords"},
				{"{INTERNAL_LINKS}", "Internal links"},
				{"{EXTERNAL_REFS}", "External references"},
				{"{CURRENT_DATE}", "Current date"},
			},
		},
		{
			ID:    2,
			Slug:  "rewrite",
			Name:  "Article rewrite",
			Steps: 3,
			Required: []Placeholder{
				{"{ORIGINAL_TITLE}", "Current title"},
				{"{ORIGINAL_CONTENT}", "Original HTML content"},
				{"{ORIGINAL_TEXT}", "Original plain text"},
				{"{ORIGINAL_META_DESC}", "Current meta description"},
				{"{WORD_COUNT}", "Word count"},
				{"{KEYWORD}", "Main keyword"},
				{"{INTERNAL_LINKS}", "Internal links to add"},
				{"{CURRENT_DATE}", "Current date"},
				{"{SOURCE_URL}", "Source article URL"},
			},
		},
		{
			ID:    3,
			Slug:  "cluster",
			Name:  "Topic cluster (3 articles)",
			Steps: 4,
			Required: []Placeholder{
				{"{KEYWORD}", "Main keyword"},
				{"{CURRENT_DATE}", "Current date"},
			},
			PendingReview: true,
		},
	}
}

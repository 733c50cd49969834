package article

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// InputError lists every problem found in a submitted form.
type InputError struct {
	WorkflowType int
	Problems     []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input for workflow %d: %s", e.WorkflowType, strings.Join(e.Problems, "; "))
}

// Validator checks article form input against the per-workflow JSON
// schemas shipped in schemas/.
type Validator struct {
	schemas map[int]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true

	v := &Validator{schemas: map[int]*jsonschema.Schema{}}
	for _, wf := range []int{1, 2, 3} {
		name := fmt.Sprintf("schemas/workflow%d.json", wf)
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[wf] = schema
	}
	return v, nil
}

func (v *Validator) Validate(workflowType int, input json.RawMessage) error {
	schema, ok := v.schemas[workflowType]
	if !ok {
		return &InputError{WorkflowType: workflowType, Problems: []string{"unknown workflow type"}}
	}

	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return &InputError{WorkflowType: workflowType, Problems: []string{"input is not valid JSON"}}
	}

	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate workflow %d input: %w", workflowType, err)
	}
	return &InputError{WorkflowType: workflowType, Problems: leafProblems(ve)}
}

// leafProblems flattens the validation tree into "field: message" lines.
func leafProblems(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "input"
			}
			out = append(out, field+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}

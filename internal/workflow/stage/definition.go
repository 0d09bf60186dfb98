package stage

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	dErrors "transferdesk/pkg/domain-errors"
)

//go:embed definition.yaml
var defaultDefinition []byte

// Definition is the declarative form of the stage graph. It is read once at
// startup and compiled into an immutable Graph by Build.
type Definition struct {
	Initial              string            `yaml:"initial"`
	MandatoryAttachments []string          `yaml:"mandatory_attachments"`
	SectionGroups        []GroupDefinition `yaml:"section_groups"`
	Stages               []StageDefinition `yaml:"stages"`
	Transitions          []EdgeDefinition  `yaml:"transitions"`
}

// GroupDefinition names a set of sections that must jointly clear.
type GroupDefinition struct {
	Name     string   `yaml:"name"`
	Sections []string `yaml:"sections"`
}

// StageDefinition declares one stage.
type StageDefinition struct {
	Code      string   `yaml:"code"`
	Name      string   `yaml:"name"`
	SortOrder int      `yaml:"sort_order"`
	Terminal  bool     `yaml:"terminal"`
	Sections  []string `yaml:"sections"`
	Actions   []string `yaml:"actions"`
}

// EdgeDefinition declares one guarded transition.
type EdgeDefinition struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Guard string `yaml:"guard"`
}

// ParseDefinition decodes a YAML definition. Unknown keys are rejected so a
// typo in the graph file fails startup instead of silently dropping an edge.
func ParseDefinition(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "decode workflow definition")
	}
	return &def, nil
}

// LoadDefinition reads a definition file from disk. An empty path returns the
// definition embedded in the binary.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, fmt.Sprintf("open workflow definition %s", path))
	}
	defer f.Close()
	return ParseDefinition(f)
}

// DefaultDefinition returns the embedded property-transfer graph.
func DefaultDefinition() (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(defaultDefinition, &def); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "decode embedded workflow definition")
	}
	return &def, nil
}

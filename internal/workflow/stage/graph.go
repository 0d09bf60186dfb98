package stage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"transferdesk/internal/workflow/models"
	dErrors "transferdesk/pkg/domain-errors"
	pstrings "transferdesk/pkg/platform/strings"
)

// ErrUnknownStage is returned for a stage code that is not registered.
// It signals a configuration error, never a recoverable request failure.
var ErrUnknownStage = errors.New("unknown stage")

// Action names a side operation permitted while a case sits at a stage.
type Action string

const (
	ActionComputeAccounts Action = "compute_accounts"
	ActionVerifyPayment   Action = "verify_payment"
	ActionDeed            Action = "deed"
)

var knownActions = map[Action]struct{}{
	ActionComputeAccounts: {},
	ActionVerifyPayment:   {},
	ActionDeed:            {},
}

// Stage is an immutable node of the graph. Identity is Code.
type Stage struct {
	Code      models.StageCode
	Name      string
	SortOrder int
	Terminal  bool
	Sections  []models.Section
	Actions   []Action
}

// AcceptsSection reports whether sec may record a clearance at this stage.
func (s Stage) AcceptsSection(sec models.Section) bool {
	for _, candidate := range s.Sections {
		if candidate == sec {
			return true
		}
	}
	return false
}

// Allows reports whether the action is permitted at this stage.
func (s Stage) Allows(a Action) bool {
	for _, candidate := range s.Actions {
		if candidate == a {
			return true
		}
	}
	return false
}

// Transition is an immutable guarded edge.
type Transition struct {
	From  models.StageCode
	To    models.StageCode
	Guard string
}

type edgeKey struct {
	from models.StageCode
	to   models.StageCode
}

// Graph is the compiled, read-only stage graph. Safe for concurrent use.
type Graph struct {
	initial     models.StageCode
	stages      map[models.StageCode]Stage
	ordered     []Stage
	edges       map[models.StageCode][]Transition
	index       map[edgeKey]Transition
	groups      map[string]models.SectionGroup
	groupOrder  []string
	attachments []string
}

// Build compiles and validates a definition. Every failure carries
// CodeConfiguration and must abort startup.
func Build(def *Definition) (*Graph, error) {
	if def == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "workflow definition is required")
	}
	g := &Graph{
		stages: make(map[models.StageCode]Stage, len(def.Stages)),
		edges:  make(map[models.StageCode][]Transition),
		index:  make(map[edgeKey]Transition, len(def.Transitions)),
		groups: make(map[string]models.SectionGroup, len(def.SectionGroups)),
	}

	for _, sd := range def.Stages {
		st, err := compileStage(sd)
		if err != nil {
			return nil, err
		}
		if _, dup := g.stages[st.Code]; dup {
			return nil, configErr("duplicate stage %s", st.Code)
		}
		g.stages[st.Code] = st
		g.ordered = append(g.ordered, st)
	}
	sort.SliceStable(g.ordered, func(i, j int) bool {
		return g.ordered[i].SortOrder < g.ordered[j].SortOrder
	})

	g.initial = models.StageCode(strings.TrimSpace(def.Initial))
	if _, ok := g.stages[g.initial]; !ok {
		return nil, unknownStage(g.initial, "initial stage")
	}
	if g.stages[g.initial].Terminal {
		return nil, configErr("initial stage %s cannot be terminal", g.initial)
	}

	for _, ed := range def.Transitions {
		t := Transition{
			From:  models.StageCode(strings.TrimSpace(ed.From)),
			To:    models.StageCode(strings.TrimSpace(ed.To)),
			Guard: strings.TrimSpace(ed.Guard),
		}
		from, ok := g.stages[t.From]
		if !ok {
			return nil, unknownStage(t.From, "transition source")
		}
		if _, ok := g.stages[t.To]; !ok {
			return nil, unknownStage(t.To, "transition target")
		}
		if from.Terminal {
			return nil, configErr("terminal stage %s cannot have outgoing transitions", t.From)
		}
		if t.Guard == "" {
			return nil, configErr("transition %s -> %s has no guard", t.From, t.To)
		}
		key := edgeKey{from: t.From, to: t.To}
		if _, dup := g.index[key]; dup {
			return nil, configErr("duplicate transition %s -> %s", t.From, t.To)
		}
		g.index[key] = t
		g.edges[t.From] = append(g.edges[t.From], t)
	}

	for _, gd := range def.SectionGroups {
		group, err := compileGroup(gd)
		if err != nil {
			return nil, err
		}
		if _, dup := g.groups[group.Name]; dup {
			return nil, configErr("duplicate section group %s", group.Name)
		}
		g.groups[group.Name] = group
		g.groupOrder = append(g.groupOrder, group.Name)
	}

	g.attachments = pstrings.NormalizeCodes(def.MandatoryAttachments)
	return g, nil
}

// MustBuild is Build for package-level test fixtures.
func MustBuild(def *Definition) *Graph {
	g, err := Build(def)
	if err != nil {
		panic(err)
	}
	return g
}

// Default compiles the embedded definition.
func Default() (*Graph, error) {
	def, err := DefaultDefinition()
	if err != nil {
		return nil, err
	}
	return Build(def)
}

func compileStage(sd StageDefinition) (Stage, error) {
	code := models.StageCode(strings.TrimSpace(sd.Code))
	if code == "" {
		return Stage{}, configErr("stage code is required")
	}
	st := Stage{Code: code, Name: sd.Name, SortOrder: sd.SortOrder, Terminal: sd.Terminal}
	if st.Name == "" {
		st.Name = string(code)
	}
	for _, raw := range pstrings.NormalizeCodes(sd.Sections) {
		sec := models.Section(raw)
		if !sec.IsKnown() {
			return Stage{}, configErr("stage %s references unknown section %s", code, raw)
		}
		st.Sections = append(st.Sections, sec)
	}
	for _, raw := range sd.Actions {
		a := Action(strings.TrimSpace(raw))
		if _, ok := knownActions[a]; !ok {
			return Stage{}, configErr("stage %s references unknown action %s", code, raw)
		}
		st.Actions = append(st.Actions, a)
	}
	if st.Terminal && (len(st.Sections) > 0 || len(st.Actions) > 0) {
		return Stage{}, configErr("terminal stage %s cannot accept clearances or actions", code)
	}
	return st, nil
}

func compileGroup(gd GroupDefinition) (models.SectionGroup, error) {
	name := strings.ToUpper(strings.TrimSpace(gd.Name))
	if name == "" {
		return models.SectionGroup{}, configErr("section group name is required")
	}
	sections := pstrings.NormalizeCodes(gd.Sections)
	if len(sections) == 0 {
		return models.SectionGroup{}, configErr("section group %s has no sections", name)
	}
	group := models.SectionGroup{Name: name}
	for _, raw := range sections {
		sec := models.Section(raw)
		if !sec.IsKnown() {
			return models.SectionGroup{}, configErr("section group %s references unknown section %s", name, raw)
		}
		group.Sections = append(group.Sections, sec)
	}
	return group, nil
}

func configErr(format string, args ...any) error {
	return dErrors.Newf(dErrors.CodeConfiguration, format, args...)
}

func unknownStage(code models.StageCode, role string) error {
	return dErrors.Wrap(ErrUnknownStage, dErrors.CodeConfiguration, fmt.Sprintf("%s %q is not registered", role, code))
}

// Initial returns the stage assigned at case creation.
func (g *Graph) Initial() models.StageCode {
	return g.initial
}

// Stage looks up a stage by code.
func (g *Graph) Stage(code models.StageCode) (Stage, error) {
	st, ok := g.stages[code]
	if !ok {
		return Stage{}, unknownStage(code, "stage")
	}
	return st, nil
}

// Stages returns every stage ordered by SortOrder.
func (g *Graph) Stages() []Stage {
	return append([]Stage(nil), g.ordered...)
}

// Edges returns the outgoing transitions of a stage in declaration order.
func (g *Graph) Edges(from models.StageCode) ([]Transition, error) {
	if _, ok := g.stages[from]; !ok {
		return nil, unknownStage(from, "stage")
	}
	return append([]Transition(nil), g.edges[from]...), nil
}

// Edge returns the transition from -> to, if one exists.
func (g *Graph) Edge(from, to models.StageCode) (Transition, bool) {
	t, ok := g.index[edgeKey{from: from, to: to}]
	return t, ok
}

// Exists reports whether from -> to is a registered transition.
func (g *Graph) Exists(from, to models.StageCode) bool {
	_, ok := g.index[edgeKey{from: from, to: to}]
	return ok
}

// IsTerminal reports whether the stage is terminal. Unknown stages are not.
func (g *Graph) IsTerminal(code models.StageCode) bool {
	st, ok := g.stages[code]
	return ok && st.Terminal
}

// Transitions returns every edge of the graph.
func (g *Graph) Transitions() []Transition {
	var out []Transition
	for _, st := range g.ordered {
		out = append(out, g.edges[st.Code]...)
	}
	return out
}

// Group returns a configured section group.
func (g *Graph) Group(name string) (models.SectionGroup, bool) {
	group, ok := g.groups[strings.ToUpper(strings.TrimSpace(name))]
	return group, ok
}

// Groups returns every configured section group in declaration order.
func (g *Graph) Groups() []models.SectionGroup {
	out := make([]models.SectionGroup, 0, len(g.groupOrder))
	for _, name := range g.groupOrder {
		out = append(out, g.groups[name])
	}
	return out
}

// MandatoryAttachments returns the attachment types intake requires.
func (g *Graph) MandatoryAttachments() []string {
	return append([]string(nil), g.attachments...)
}

package taskcache

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the build step a task belongs to. It is mixed into every
// fingerprint so two kinds never share a marker even for identical inputs.
type Kind string

const (
	KindExternalCommand    Kind = "ExternalCommand"
	KindComponentGenerator Kind = "ComponentGenerator"
	KindRpcLink            Kind = "RpcLink"
	KindAddMetadata        Kind = "AddMetadata"
)

// Task is one fingerprint-cacheable unit of pipeline work. The set of
// implementations is closed to this package.
type Task interface {
	Kind() Kind
	isTask()
}

// ExternalCommand describes a shell command declared for a component build.
type ExternalCommand struct {
	Command string   `json:"command" yaml:"command"`
	Dir     string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	RmDirs  []string `json:"rmdirs,omitempty" yaml:"rmdirs,omitempty"`
	MkDirs  []string `json:"mkdirs,omitempty" yaml:"mkdirs,omitempty"`
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// Dependency is a component another component links against.
type Dependency struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// ExternalCommandTask runs a declared external command. The whole command
// definition is its identity, so any edit produces a new marker.
type ExternalCommandTask struct {
	BuildDir string          `json:"build_dir"`
	Command  ExternalCommand `json:"command"`
}

// ComponentGeneratorTask generates RPC stubs and bindings for a component.
type ComponentGeneratorTask struct {
	ComponentName string `json:"component_name"`
	Generator     string `json:"generator"`
}

// RpcLinkTask links RPC call implementations into a component. Its marker is
// addressed by component name so changing a dependency type reuses the slot.
type RpcLinkTask struct {
	ComponentName string       `json:"component_name"`
	Dependencies  []Dependency `json:"dependencies"`
}

// AddMetadataTask embeds package metadata into a component binary.
type AddMetadataTask struct {
	ComponentName   string `json:"component_name"`
	RootPackageName string `json:"root_package_name"`
}

func (ExternalCommandTask) Kind() Kind    { return KindExternalCommand }
func (ComponentGeneratorTask) Kind() Kind { return KindComponentGenerator }
func (RpcLinkTask) Kind() Kind            { return KindRpcLink }
func (AddMetadataTask) Kind() Kind        { return KindAddMetadata }

func (ExternalCommandTask) isTask()    {}
func (ComponentGeneratorTask) isTask() {}
func (RpcLinkTask) isTask()            {}
func (AddMetadataTask) isTask()        {}

// componentIdentity is the marker address for kinds keyed by component.
type componentIdentity struct {
	ComponentName string `json:"component_name"`
}

// Description is the canonical serialized form of a task.
type Description struct {
	Kind      Kind
	HashInput string
	Identity  string // empty when the kind has no identity narrower than its input
}

// Label returns a short human-readable name for diagnostics.
func (d Description) Label() string {
	if d.Identity != "" {
		return fmt.Sprintf("%s %s", d.Kind, d.Identity)
	}
	return fmt.Sprintf("%s %s", d.Kind, d.HashInput)
}

// Describe serializes a task into its hash input and optional identity.
func Describe(task Task) (Description, error) {
	switch t := task.(type) {
	case ExternalCommandTask:
		return describe(t.Kind(), t, nil)
	case *ExternalCommandTask:
		return Describe(*t)
	case ComponentGeneratorTask:
		return describe(t.Kind(), t, nil)
	case *ComponentGeneratorTask:
		return Describe(*t)
	case RpcLinkTask:
		canonical := RpcLinkTask{
			ComponentName: t.ComponentName,
			Dependencies:  SortedDependencies(t.Dependencies),
		}
		return describe(t.Kind(), canonical, componentIdentity{t.ComponentName})
	case *RpcLinkTask:
		return Describe(*t)
	case AddMetadataTask:
		return describe(t.Kind(), t, componentIdentity{t.ComponentName})
	case *AddMetadataTask:
		return Describe(*t)
	case nil:
		return Description{}, &Error{Code: CodeSerializeInput, Err: fmt.Errorf("nil task")}
	default:
		return Description{}, &Error{Code: CodeSerializeInput, Kind: task.Kind(), Err: fmt.Errorf("unsupported task type %T", task)}
	}
}

func describe(kind Kind, input interface{}, identity interface{}) (Description, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return Description{}, &Error{Code: CodeSerializeInput, Kind: kind, Err: fmt.Errorf("marshal hash input: %w", err)}
	}
	d := Description{Kind: kind, HashInput: string(in)}
	if identity != nil {
		id, err := json.Marshal(identity)
		if err != nil {
			return Description{}, &Error{Code: CodeSerializeInput, Kind: kind, Err: fmt.Errorf("marshal identity: %w", err)}
		}
		d.Identity = string(id)
	}
	return d, nil
}

// SortedDependencies returns deps sorted by (name, type) with duplicates removed.
func SortedDependencies(deps []Dependency) []Dependency {
	out := make([]Dependency, 0, len(deps))
	seen := make(map[Dependency]bool, len(deps))
	for _, d := range deps {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})
	return out
}

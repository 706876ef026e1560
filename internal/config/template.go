package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fieldmesh/iiotgw/internal/group"
	"github.com/fieldmesh/iiotgw/internal/manager"
	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

// templateFile is the on-disk YAML shape for a template definition
// (SPEC_FULL.md §4.3 supplemental): a plain, human-editable alternative to
// building a manager.TemplateSpec by hand in code, the same role YAML plays
// for the teacher's Kubernetes manifests.
type templateFile struct {
	Name       string          `yaml:"name"`
	PluginName string          `yaml:"plugin"`
	Groups     []templateGroup `yaml:"groups"`
}

type templateGroup struct {
	Name       string        `yaml:"name"`
	IntervalMS uint32        `yaml:"interval_ms"`
	Tags       []templateTag `yaml:"tags"`
}

type templateTag struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Precision uint8  `yaml:"precision"`
	Address   string `yaml:"address"`
}

// LoadTemplateFile parses a YAML template definition into a
// manager.TemplateSpec ready for Manager.AddTemplate.
func LoadTemplateFile(path string) (manager.TemplateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manager.TemplateSpec{}, fmt.Errorf("config: read template %s: %w", path, err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return manager.TemplateSpec{}, fmt.Errorf("config: parse template %s: %w", path, err)
	}

	spec := manager.TemplateSpec{Name: tf.Name, PluginName: tf.PluginName}
	for _, tg := range tf.Groups {
		gs := manager.GroupSpec{Name: tg.Name, IntervalMS: tg.IntervalMS}
		for _, tt := range tg.Tags {
			kind, err := parseKind(tt.Kind)
			if err != nil {
				return manager.TemplateSpec{}, fmt.Errorf("config: template %s group %s tag %s: %w", tf.Name, tg.Name, tt.Name, err)
			}
			gs.Tags = append(gs.Tags, group.TagDef{Name: tt.Name, Kind: kind, Precision: tt.Precision, Address: tt.Address})
		}
		spec.Groups = append(spec.Groups, gs)
	}
	return spec, nil
}

func parseKind(s string) (tagvalue.Kind, error) {
	switch s {
	case "INT8":
		return tagvalue.KindInt8, nil
	case "UINT8":
		return tagvalue.KindUint8, nil
	case "INT16":
		return tagvalue.KindInt16, nil
	case "UINT16":
		return tagvalue.KindUint16, nil
	case "INT32":
		return tagvalue.KindInt32, nil
	case "UINT32":
		return tagvalue.KindUint32, nil
	case "INT64":
		return tagvalue.KindInt64, nil
	case "UINT64":
		return tagvalue.KindUint64, nil
	case "BIT":
		return tagvalue.KindBit, nil
	case "BOOL":
		return tagvalue.KindBool, nil
	case "FLOAT":
		return tagvalue.KindFloat, nil
	case "DOUBLE":
		return tagvalue.KindDouble, nil
	case "STRING":
		return tagvalue.KindString, nil
	case "BYTES":
		return tagvalue.KindBytes, nil
	case "WORD":
		return tagvalue.KindWord, nil
	case "DWORD":
		return tagvalue.KindDWord, nil
	case "LWORD":
		return tagvalue.KindLWord, nil
	default:
		return 0, fmt.Errorf("unknown tag kind %q", s)
	}
}

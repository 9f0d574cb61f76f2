package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of an HCL flowgraph file.
//
//	log { level = "debug" }
//	block "src" {
//	  kind = "vector_source"
//	  data = [1, 2, 3]
//	}
//	connect {
//	  from = "src:0"
//	  to   = "sink"
//	}
type hclFile struct {
	Log      *hclLog      `hcl:"log,block"`
	Engine   *hclEngine   `hcl:"engine,block"`
	Blocks   []*hclBlock  `hcl:"block,block"`
	Connects []hclConnect `hcl:"connect,block"`
}

type hclLog struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

type hclEngine struct {
	BufferItems       int   `hcl:"buffer_items,optional"`
	ForceDoubleMapped bool  `hcl:"force_double_mapped,optional"`
	EnableStats       *bool `hcl:"enable_stats,optional"`
}

// hclBlock keeps every attribute besides kind as a block parameter.
type hclBlock struct {
	Name   string   `hcl:"name,label"`
	Kind   string   `hcl:"kind"`
	Remain hcl.Body `hcl:",remain"`
}

type hclConnect struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

func decodeHCL(filename string, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	var cfg Config
	if parsed.Log != nil {
		cfg.Log = LogConfig{Level: parsed.Log.Level, Format: parsed.Log.Format}
	}
	if parsed.Engine != nil {
		cfg.Engine = EngineConfig{
			BufferItems:       parsed.Engine.BufferItems,
			ForceDoubleMapped: parsed.Engine.ForceDoubleMapped,
			EnableStats:       parsed.Engine.EnableStats,
		}
	}
	for _, b := range parsed.Blocks {
		params, err := blockParams(b.Remain)
		if err != nil {
			return nil, fmt.Errorf("block %q in %s: %w", b.Name, filename, err)
		}
		cfg.Blocks = append(cfg.Blocks, BlockConfig{Name: b.Name, Kind: b.Kind, Params: params})
	}
	for _, c := range parsed.Connects {
		cfg.Connections = append(cfg.Connections, ConnectConfig(c))
	}
	return &cfg, nil
}

// blockParams evaluates the leftover attributes of a block without variables
// or functions.
func blockParams(body hcl.Body) (map[string]any, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		v, err := ctyValueToInterface(val)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

// ctyValueToInterface converts a cty.Value to the plain Go values YAML
// decoding would produce. Numbers become float64.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = elem
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

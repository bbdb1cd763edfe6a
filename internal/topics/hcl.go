package topics

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	hclManifest struct {
		Version string      `hcl:"version,optional"`
		Topics  []*hclTopic `hcl:"topic,block"`
	}

	hclTopic struct {
		Name       string      `hcl:"name,label"`
		Notes      string      `hcl:"notes,optional"`
		Replay     bool        `hcl:"replay,optional"`
		ThrottleMs int64       `hcl:"throttle_ms,optional"`
		DebounceMs int64       `hcl:"debounce_ms,optional"`
		Routes     []*hclRoute `hcl:"route,block"`
		Schema     *hclSchema  `hcl:"schema,block"`
	}

	hclRoute struct {
		Plugin   string `hcl:"plugin"`
		Sequence string `hcl:"sequence"`
	}

	hclSchema struct {
		Type       string      `hcl:"type,optional"`
		Required   []string    `hcl:"required,optional"`
		Additional *bool       `hcl:"additional_properties,optional"`
		Fields     []*hclField `hcl:"field,block"`
	}

	hclField struct {
		Name string   `hcl:"name,label"`
		Type string   `hcl:"type,optional"`
		Enum []string `hcl:"enum,optional"`
	}
)

// DecodeHCL decodes an HCL topics manifest. Topics are declared as
// labeled blocks:
//
//	topic "canvas.component.select" {
//	  replay = true
//	  route {
//	    plugin   = "canvas"
//	    sequence = "canvas-component-select"
//	  }
//	  schema {
//	    required = ["id"]
//	    field "id" { type = "string" }
//	  }
//	}
//
// Enum values in HCL manifests are strings
func DecodeHCL(filename string, data []byte) (*api.TopicsManifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestDecode, filename, diags)
	}

	var raw hclManifest
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestDecode, filename, diags)
	}

	res := &api.TopicsManifest{
		Version: raw.Version,
		Topics:  make(map[api.TopicName]*api.TopicDef, len(raw.Topics)),
	}
	for _, t := range raw.Topics {
		name := api.TopicName(t.Name)
		if _, ok := res.Topics[name]; ok {
			return nil, fmt.Errorf("%w: %s: duplicate topic %q",
				ErrManifestDecode, filename, t.Name)
		}
		res.Topics[name] = t.toTopicDef()
	}
	return res, nil
}

func (t *hclTopic) toTopicDef() *api.TopicDef {
	def := &api.TopicDef{
		Name:   api.TopicName(t.Name),
		Notes:  t.Notes,
		Replay: t.Replay,
		Routes: make([]api.Route, 0, len(t.Routes)),
	}
	for _, r := range t.Routes {
		def.Routes = append(def.Routes, api.Route{
			Target:    api.TargetID(r.Plugin),
			Operation: api.OperationID(r.Sequence),
		})
	}
	if t.ThrottleMs != 0 || t.DebounceMs != 0 {
		def.Policy = &api.DeliveryPolicy{
			ThrottleMs: t.ThrottleMs,
			DebounceMs: t.DebounceMs,
		}
	}
	if t.Schema != nil {
		def.Schema = t.Schema.toPayloadSchema()
	}
	return def
}

func (s *hclSchema) toPayloadSchema() *api.PayloadSchema {
	res := &api.PayloadSchema{
		Type:       api.FieldType(s.Type),
		Required:   s.Required,
		Additional: s.Additional,
	}
	if len(s.Fields) == 0 {
		return res
	}
	res.Properties = make(map[string]*api.FieldSchema, len(s.Fields))
	for _, f := range s.Fields {
		fs := &api.FieldSchema{Type: api.FieldType(f.Type)}
		for _, e := range f.Enum {
			fs.Enum = append(fs.Enum, e)
		}
		res.Properties[f.Name] = fs
	}
	return res
}

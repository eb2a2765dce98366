// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/shenbot/shenbot/internal/plugin/config"
)

// maxIDLength bounds plugin ids, which double as config file stems.
const maxIDLength = 64

// manifestDoc is the shape PLUGIN_MANIFEST must have.
type manifestDoc struct {
	ID          string                    `json:"id" mapstructure:"id" jsonschema:"minLength=1,maxLength=64,pattern=^[a-zA-Z0-9][a-zA-Z0-9_-]*$" jsonschema_description:"Unique plugin id, used as registry key and config file name"`
	Name        string                    `json:"name" mapstructure:"name" jsonschema:"minLength=1"`
	Version     string                    `json:"version" mapstructure:"version" jsonschema:"minLength=1"`
	Description string                    `json:"description,omitempty" mapstructure:"description"`
	Authors     []string                  `json:"authors,omitempty" mapstructure:"authors"`
	Homepage    string                    `json:"homepage,omitempty" mapstructure:"homepage"`
	Config      map[string]map[string]any `json:"config,omitempty" mapstructure:"config" jsonschema_description:"Config sections: section name to key defaults"`
}

var (
	schemaOnce     sync.Once
	schemaCompiled *jschema.Schema
	schemaErr      error
)

// GenerateSchema generates the JSON Schema of a plugin manifest.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&manifestDoc{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "shenbot plugin manifest"
	schema.Description = "Shape of the " + ManifestAttr + " table every plugin defines"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal manifest schema")
	}
	return data, nil
}

// SchemaID is the $id of the manifest schema.
const SchemaID = "https://shenbot.dev/schemas/plugin-manifest.schema.json"

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			schemaErr = oops.Wrapf(err, "parse manifest schema")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("manifest.json", doc); err != nil {
			schemaErr = oops.Wrapf(err, "add manifest schema resource")
			return
		}
		schemaCompiled, schemaErr = c.Compile("manifest.json")
	})
	return schemaCompiled, schemaErr
}

// ValidateManifest checks a raw manifest value against the manifest schema.
func ValidateManifest(raw any) error {
	sch, err := compiledSchema()
	if err != nil {
		return oops.Wrapf(err, "compile manifest schema")
	}
	if err := sch.Validate(jsonCompatible(raw)); err != nil {
		return oops.Wrapf(err, "manifest validation failed")
	}
	return nil
}

// DecodeManifest turns the value of PLUGIN_MANIFEST into a Manifest.
// Any shape problem is reported as MANIFEST_TYPE_MISMATCH.
func DecodeManifest(path string, raw any) (*Manifest, error) {
	table, ok := normalizeManifest(raw)
	if !ok {
		return nil, ErrManifestTypeMismatch(path, nil)
	}
	if err := ValidateManifest(table); err != nil {
		return nil, ErrManifestTypeMismatch(path, err)
	}

	var doc manifestDoc
	if err := mapstructure.Decode(table, &doc); err != nil {
		return nil, ErrManifestTypeMismatch(path, err)
	}
	if len(doc.ID) > maxIDLength {
		return nil, ErrManifestTypeMismatch(path, oops.Errorf("id longer than %d characters", maxIDLength))
	}

	m := &Manifest{
		ID:          doc.ID,
		Name:        doc.Name,
		Version:     doc.Version,
		Description: doc.Description,
		Authors:     doc.Authors,
		Homepage:    doc.Homepage,
		Config:      make(map[string]*config.Schema, len(doc.Config)),
	}
	if m.Authors == nil {
		m.Authors = []string{}
	}
	for section, defaults := range doc.Config {
		m.Config[section] = config.SchemaFromNative(section, defaults)
	}
	if _, err := m.SemVer(); err != nil {
		slog.Warn("plugin version is not semver", "plugin", m.ID, "version", m.Version)
	}
	return m, nil
}

// normalizeManifest converts empty tables, which the interpreter reports as
// empty lists, into empty maps where the manifest expects a table.
func normalizeManifest(raw any) (map[string]any, bool) {
	table, ok := asTable(raw)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(table))
	for k, v := range table {
		out[k] = v
	}
	if cfg, present := out["config"]; present {
		sections, ok := asTable(cfg)
		if !ok {
			return out, true
		}
		fixed := make(map[string]any, len(sections))
		for name, sec := range sections {
			if t, ok := asTable(sec); ok {
				fixed[name] = t
			} else {
				fixed[name] = sec
			}
		}
		out["config"] = fixed
	}
	return out, true
}

func asTable(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) == 0 {
			return map[string]any{}, true
		}
	}
	return nil, false
}

// jsonCompatible converts integers to json.Number so the validator sees the
// same types encoding/json would produce.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonCompatible(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonCompatible(item)
		}
		return out
	case int64:
		return json.Number(strconv.FormatInt(val, 10))
	case int:
		return json.Number(strconv.Itoa(val))
	case string, bool, float64, nil:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// FormatSchemaError trims validator boilerplate for display.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, "manifest validation failed: "); i >= 0 {
		msg = msg[i+len("manifest validation failed: "):]
	}
	return msg
}

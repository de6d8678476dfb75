// Package schema holds per-marker-name schemas: where a marker is displayed,
// how its label is rendered, and which payload fields a custom chart track
// plots. The registry is an explicit map owned by the caller; there is no
// ambient global state.
package schema

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Location is a display location a schema can declare.
type Location string

const (
	LocationMarkerChart      Location = "marker-chart"
	LocationMarkerTable      Location = "marker-table"
	LocationTimelineOverview Location = "timeline-overview"
	LocationTimelineMemory   Location = "timeline-memory"
	LocationStackChart       Location = "stack-chart"
)

// KeepUnknownByDefault reports whether markers without any schema for their
// name are still shown at the given location. The table is permissive, charts
// are not.
func KeepUnknownByDefault(loc Location) bool {
	switch loc {
	case LocationMarkerTable:
		return true
	default:
		return false
	}
}

// FieldFormat describes how a payload field is formatted for display.
type FieldFormat string

const (
	FormatString       FieldFormat = "string"
	FormatDuration     FieldFormat = "duration"
	FormatTime         FieldFormat = "time"
	FormatBytes        FieldFormat = "bytes"
	FormatInteger      FieldFormat = "integer"
	FormatDecimal      FieldFormat = "decimal"
	FormatMilliseconds FieldFormat = "milliseconds"
	FormatURL          FieldFormat = "url"
)

// Field declares one payload field of a schema.
type Field struct {
	Key    string      `yaml:"key"`
	Label  string      `yaml:"label"`
	Format FieldFormat `yaml:"format"`
}

// TrackLine declares one plotted line of a custom track.
type TrackLine struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// TrackConfig declares a schema-defined numeric chart track.
type TrackConfig struct {
	Label string      `yaml:"label"`
	Lines []TrackLine `yaml:"lines"`
}

// Schema is the declaration for one marker name.
type Schema struct {
	Name         string       `yaml:"name"`
	Display      []Location   `yaml:"display"`
	TooltipLabel string       `yaml:"tooltipLabel"`
	TableLabel   string       `yaml:"tableLabel"`
	ChartLabel   string       `yaml:"chartLabel"`
	Fields       []Field      `yaml:"fields"`
	Track        *TrackConfig `yaml:"track"`
}

// DisplayedAt reports whether the schema declares the given location.
func (s *Schema) DisplayedAt(loc Location) bool {
	for _, l := range s.Display {
		if l == loc {
			return true
		}
	}
	return false
}

func (s *Schema) validate() error {
	var errs *multierror.Error
	if s.Name == "" {
		errs = multierror.Append(errs, errors.New("schema without a name"))
	}
	for _, f := range s.Fields {
		if f.Key == "" {
			errs = multierror.Append(errs, errors.Errorf("schema %q: field without a key", s.Name))
		}
	}
	if s.Track != nil && len(s.Track.Lines) == 0 {
		errs = multierror.Append(errs, errors.Errorf("schema %q: track config without lines", s.Name))
	}
	return errs.ErrorOrNil()
}

// Registry maps marker names to their schema.
type Registry struct {
	byName map[string]*Schema
}

func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Schema, len(schemas))}
	var errs *multierror.Error
	for i := range schemas {
		s := schemas[i]
		if err := s.validate(); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		// Later declarations win, matching capture-embedded schema precedence.
		r.byName[s.Name] = &s
	}
	return r, errs.ErrorOrNil()
}

// Lookup returns the schema declared for the marker name, or nil.
func (r *Registry) Lookup(name string) *Schema {
	if r == nil {
		return nil
	}
	return r.byName[name]
}

// TrackNames returns the names of all schemas declaring a custom track.
func (r *Registry) TrackNames() []string {
	var names []string
	for name, s := range r.byName {
		if s.Track != nil {
			names = append(names, name)
		}
	}
	return names
}

// DecodeYAML reads a list of schemas from a YAML document.
func DecodeYAML(rd io.Reader) ([]Schema, error) {
	var doc struct {
		Schemas []Schema `yaml:"schemas"`
	}
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding schema file")
	}
	return doc.Schemas, nil
}

// FieldGetter resolves a payload field by key for label rendering.
type FieldGetter func(key string) (any, bool)

// RenderLabel substitutes {marker.data.<key>} references in a label template.
// Unresolvable references render as empty strings; this is a data-quality
// concern, not an error.
func RenderLabel(template string, get FieldGetter) string {
	if !strings.Contains(template, "{") {
		return template
	}
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		ref := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]
		key, ok := strings.CutPrefix(ref, "marker.data.")
		if !ok {
			continue
		}
		if get == nil {
			continue
		}
		if v, ok := get(key); ok {
			fmt.Fprintf(&b, "%v", v)
		}
	}
}

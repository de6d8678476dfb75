package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewRegistry(t *testing.T) {
	reg, err := NewRegistry(
		Schema{Name: "Paint", Display: []Location{LocationMarkerChart}},
		Schema{Name: "CPU", Display: []Location{LocationTimelineOverview}, Track: &TrackConfig{
			Label: "CPU",
			Lines: []TrackLine{{Key: "user"}},
		}},
	)
	require.NoError(t, err)

	require.NotNil(t, reg.Lookup("Paint"))
	assert.True(t, reg.Lookup("Paint").DisplayedAt(LocationMarkerChart))
	assert.False(t, reg.Lookup("Paint").DisplayedAt(LocationMarkerTable))
	assert.Nil(t, reg.Lookup("Unknown"))
	assert.Equal(t, []string{"CPU"}, reg.TrackNames())
}

func Test_NewRegistry_LaterDeclarationWins(t *testing.T) {
	reg, err := NewRegistry(
		Schema{Name: "Paint", Display: []Location{LocationMarkerChart}},
		Schema{Name: "Paint", Display: []Location{LocationMarkerTable}},
	)
	require.NoError(t, err)
	assert.True(t, reg.Lookup("Paint").DisplayedAt(LocationMarkerTable))
	assert.False(t, reg.Lookup("Paint").DisplayedAt(LocationMarkerChart))
}

func Test_NewRegistry_CollectsAllErrors(t *testing.T) {
	reg, err := NewRegistry(
		Schema{Name: ""},
		Schema{Name: "Broken", Fields: []Field{{Label: "no key"}}},
		Schema{Name: "NoLines", Track: &TrackConfig{Label: "x"}},
		Schema{Name: "Fine"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema without a name")
	assert.Contains(t, err.Error(), `schema "Broken": field without a key`)
	assert.Contains(t, err.Error(), `schema "NoLines": track config without lines`)

	// Valid schemas still register; the invalid ones are skipped.
	assert.NotNil(t, reg.Lookup("Fine"))
	assert.Nil(t, reg.Lookup("Broken"))
}

func Test_NilRegistryLookup(t *testing.T) {
	var reg *Registry
	assert.Nil(t, reg.Lookup("anything"))
}

func Test_DecodeYAML(t *testing.T) {
	doc := `
schemas:
  - name: FileIO
    display: [marker-chart, marker-table]
    tableLabel: "{marker.data.operation} on {marker.data.filename}"
    fields:
      - key: operation
        label: Operation
      - key: filename
        label: File
        format: string
  - name: CPU
    display: [timeline-overview]
    track:
      label: CPU usage
      lines:
        - key: user
        - key: system
          label: System
`
	schemas, err := DecodeYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	assert.Equal(t, "FileIO", schemas[0].Name)
	assert.Equal(t, []Location{LocationMarkerChart, LocationMarkerTable}, schemas[0].Display)
	assert.Equal(t, "{marker.data.operation} on {marker.data.filename}", schemas[0].TableLabel)
	require.Len(t, schemas[0].Fields, 2)
	assert.Equal(t, FormatString, schemas[0].Fields[1].Format)

	require.NotNil(t, schemas[1].Track)
	assert.Equal(t, "CPU usage", schemas[1].Track.Label)
	assert.Equal(t, "system", schemas[1].Track.Lines[1].Key)
}

func Test_DecodeYAML_Invalid(t *testing.T) {
	_, err := DecodeYAML(strings.NewReader("schemas: {not: a list}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding schema file")
}

func Test_RenderLabel(t *testing.T) {
	get := func(key string) (any, bool) {
		switch key {
		case "operation":
			return "read", true
		case "bytes":
			return int64(512), true
		}
		return nil, false
	}

	for _, tc := range []struct {
		name     string
		template string
		want     string
	}{
		{name: "plain text", template: "Garbage Collection", want: "Garbage Collection"},
		{name: "single field", template: "{marker.data.operation}", want: "read"},
		{name: "mixed", template: "{marker.data.operation}: {marker.data.bytes}b", want: "read: 512b"},
		{name: "unresolvable renders empty", template: "op {marker.data.missing} done", want: "op  done"},
		{name: "non-marker reference dropped", template: "{something.else}x", want: "x"},
		{name: "unterminated brace kept", template: "open {marker.data.operation", want: "open {marker.data.operation"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RenderLabel(tc.template, get))
		})
	}

	assert.Equal(t, "", RenderLabel("{marker.data.operation}", nil))
}

func Test_KeepUnknownByDefault(t *testing.T) {
	assert.True(t, KeepUnknownByDefault(LocationMarkerTable))
	assert.False(t, KeepUnknownByDefault(LocationMarkerChart))
	assert.False(t, KeepUnknownByDefault(LocationTimelineOverview))
}

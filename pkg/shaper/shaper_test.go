package shaper

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blessingk/neo4j/pkg/models"
)

func TestPlain_PlainInputIsUnchanged(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "nil", input: nil},
		{name: "string", input: "hello"},
		{name: "int", input: int64(42)},
		{name: "bool", input: true},
		{name: "map", input: map[string]any{"a": "b", "n": int64(1)}},
		{name: "nested", input: map[string]any{"list": []any{"x", map[string]any{"y": 1.5}}}},
		{name: "slice", input: []any{"a", int64(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, Plain(tt.input))
		})
	}
}

func TestPlain_DoesNotMutateInput(t *testing.T) {
	node := dbtype.Node{
		ElementId: "4:abc:1",
		Labels:    []string{"Session"},
		Props: map[string]any{
			"id":      "s1",
			"created": dbtype.Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		},
	}
	input := map[string]any{"s": node}

	out := Plain(input).(map[string]any)
	session := out["s"].(map[string]any)
	session["id"] = "changed"

	assert.Equal(t, "s1", node.Props["id"])
	assert.IsType(t, dbtype.Date{}, node.Props["created"])
	assert.IsType(t, dbtype.Node{}, input["s"])
}

func TestPlain_ConvertsDriverValues(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	node := dbtype.Node{Props: map[string]any{"id": "c1", "seen": dbtype.LocalDateTime(ts)}}
	rel := dbtype.Relationship{Type: "BELONGS_TO", Props: map[string]any{"since": "x"}}
	path := dbtype.Path{Nodes: []dbtype.Node{{Props: map[string]any{"id": "a"}}, {Props: map[string]any{"id": "b"}}}}

	assert.Equal(t, map[string]any{"id": "c1", "seen": ts}, Plain(node))
	assert.Equal(t, map[string]any{"since": "x"}, Plain(rel))
	assert.Equal(t, []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}, Plain(path))
	assert.Equal(t, ts, Plain(dbtype.LocalDateTime(ts)))
}

func TestPlain_Record(t *testing.T) {
	record := &neo4j.Record{
		Keys:   []string{"s", "count"},
		Values: []any{dbtype.Node{Props: map[string]any{"id": "s1"}}, int64(3)},
	}

	out := Plain(record)

	assert.Equal(t, map[string]any{"s": map[string]any{"id": "s1"}, "count": int64(3)}, out)
}

func TestSessionFromProps(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := created.Add(time.Hour)

	s := SessionFromProps(map[string]any{
		"id":                "uuid-1",
		"internalSessionId": "braze:b1:brand-a",
		"provider":          "braze",
		"brazeSession":      "b1",
		"brandId":           "brand-a",
		"createdAt":         created,
		"lastSeenAt":        seen.Format(time.RFC3339Nano),
	})

	require.NotNil(t, s)
	assert.Equal(t, models.ProviderBraze, s.Provider)
	assert.Equal(t, "b1", s.BrazeSession)
	assert.Equal(t, created, s.CreatedAt)
	assert.Equal(t, seen, s.LastSeenAt)
	assert.Empty(t, s.AmplitudeSession)
}

func TestDecodersReturnNilForMissingProps(t *testing.T) {
	assert.Nil(t, BrandFromProps(nil))
	assert.Nil(t, CustomerFromProps(nil))
	assert.Nil(t, SessionFromProps(nil))
	assert.Nil(t, IdentityFromProps(nil))
}

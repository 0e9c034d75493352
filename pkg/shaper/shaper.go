// Package shaper converts graph driver values into plain Go data.
package shaper

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Plain converts driver wrapper values into plain maps, slices and scalars.
// Nodes and relationships become their property maps, temporal values become
// time.Time (durations become their ISO-8601 string) and records become a map
// keyed by column. The input is never mutated; plain input is returned as an
// equal value.
func Plain(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case dbtype.Node:
		return plainMap(val.Props)
	case *dbtype.Node:
		if val == nil {
			return nil
		}
		return plainMap(val.Props)
	case dbtype.Relationship:
		return plainMap(val.Props)
	case *dbtype.Relationship:
		if val == nil {
			return nil
		}
		return plainMap(val.Props)
	case dbtype.Path:
		nodes := make([]any, 0, len(val.Nodes))
		for _, n := range val.Nodes {
			nodes = append(nodes, plainMap(n.Props))
		}
		return nodes
	case *neo4j.Record:
		if val == nil {
			return nil
		}
		return RecordMap(val)
	case dbtype.Date:
		return val.Time()
	case dbtype.LocalDateTime:
		return val.Time()
	case dbtype.LocalTime:
		return val.Time()
	case dbtype.Time:
		return val.Time()
	case dbtype.Duration:
		return val.String()
	case map[string]any:
		return plainMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// RecordMap returns a record's columns as a plain map.
func RecordMap(record *neo4j.Record) map[string]any {
	out := make(map[string]any, len(record.Keys))
	for i, key := range record.Keys {
		if i < len(record.Values) {
			out[key] = Plain(record.Values[i])
		}
	}
	return out
}

func plainMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = Plain(v)
	}
	return out
}

// Props returns the plain property map of a node-like value, or nil.
func Props(v any) map[string]any {
	m, ok := Plain(v).(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	case int64:
		return time.UnixMilli(v).UTC()
	default:
		if p, ok := Plain(v).(time.Time); ok {
			return p.UTC()
		}
		return time.Time{}
	}
}

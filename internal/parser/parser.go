// Package parser implements the line-oriented key:value format shared by
// account descriptors, decrypted secret files and automation scripts.
//
// The format is deliberately permissive: full-line comments start with '#'
// or '//' in the first column, every other non-blank line is split on its
// first ':' into a key and a value, and a block key with an empty value
// collects the indented lines that follow it into a multi-line value.
// Malformed lines never produce errors; a line without ':' is a key with an
// empty value.
package parser

import (
	"strings"
)

// blockKeys lists the keys whose empty value opens an indented block.
var blockKeys = map[string]bool{
	"script": true,
}

// Entry is a single key/value pair extracted from the input.
type Entry struct {
	Key   string
	Value string
}

// String renders the entry back into "key: value" form.
func (e Entry) String() string {
	if e.Value == "" {
		return e.Key + ":"
	}
	return e.Key + ": " + e.Value
}

// Parse returns every entry of text in source order. Duplicate keys are kept.
func Parse(text string) []Entry {
	var entries []Entry
	scan(text, func(e Entry) {
		entries = append(entries, e)
	})
	return entries
}

// ParseMap returns the entries of text keyed by name. When a key appears more
// than once the last value wins.
func ParseMap(text string) map[string]string {
	values := make(map[string]string)
	scan(text, func(e Entry) {
		values[e.Key] = e.Value
	})
	return values
}

// block accumulates the continuation lines of an open block key. The entry
// is only emitted once the block is closed, so nothing observes a partially
// built value.
type block struct {
	key   string
	value strings.Builder
	open  bool
}

func (b *block) start(key string) {
	b.key = key
	b.value.Reset()
	b.open = true
}

func (b *block) finish(emit func(Entry)) {
	if !b.open {
		return
	}
	b.open = false
	emit(Entry{Key: b.key, Value: b.value.String()})
}

func scan(text string, emit func(Entry)) {
	var blk block

	for _, raw := range strings.Split(text, "\n") {
		if isComment(raw) || strings.TrimSpace(raw) == "" {
			continue
		}

		if blk.open {
			if startsWithSpace(raw) {
				blk.value.WriteString(strings.TrimSpace(raw))
				blk.value.WriteByte('\n')
				continue
			}
			blk.finish(emit)
		}

		key, value, _ := strings.Cut(strings.TrimSpace(raw), ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if blockKeys[key] && value == "" {
			blk.start(key)
			continue
		}
		emit(Entry{Key: key, Value: value})
	}

	blk.finish(emit)
}

// isComment reports whether the raw line is a comment. Only markers in the
// very first column count; indented or trailing markers are content.
func isComment(raw string) bool {
	return strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "//")
}

func startsWithSpace(raw string) bool {
	switch raw[0] {
	case ' ', '\t', '\r', '\v', '\f':
		return true
	}
	return false
}

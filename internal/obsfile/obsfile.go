// Package obsfile reads the plain-text observation files content servers are
// fed (one "key:value" pair per line, values typed by inspection) and renders
// records as readable text.
package obsfile

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Parse converts observation text into a typed record. Values parse as bool,
// then integer, then float, falling back to string. Blank lines are skipped.
func Parse(input string) (map[string]interface{}, error) {
	fields := make(map[string]interface{})

	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("invalid key-value line %q", line)
		}

		fields[strings.TrimSpace(key)] = typedValue(strings.TrimSpace(value))
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("no observation data")
	}
	return fields, nil
}

// ParseFile reads and parses an observation file.
func ParseFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observation file: %w", err)
	}
	return Parse(string(data))
}

func typedValue(value string) interface{} {
	if strings.EqualFold(value, "true") || strings.EqualFold(value, "false") {
		return strings.EqualFold(value, "true")
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// Render formats a record back into readable "key: value" lines, one pair per
// line in sorted key order. Strings are quoted; everything else prints bare.
func Render(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			fmt.Fprintf(&b, "%s: %q\n", k, v)
		case float64:
			fmt.Fprintf(&b, "%s: %s\n", k, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
	}
	return b.String()
}

// Copyright 2025 Conduit
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transform provides pure structural payload conversions used to
// normalize data flowing through connectors: XML and CSV to and from
// JSON-shaped maps, flatten/unflatten for dot-path keys, and recursive
// key renaming.
package transform

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
)

// Reserved keys in the XML mapping.
const (
	// AttributesKey holds an element's attributes.
	AttributesKey = "@attributes"
	// TextKey holds an element's character data when attributes or child
	// elements are also present.
	TextKey = "#text"
)

// XMLToJSON parses an XML document into a JSON-shaped map keyed by the
// root element name. Attributes land under "@attributes", mixed text
// under "#text", repeated same-name children coalesce into an array, and
// elements with only character data collapse to a plain string.
func XMLToJSON(data string) (map[string]interface{}, error) {
	decoder := xml.NewDecoder(strings.NewReader(data))

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("no root element found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		if start, ok := tok.(xml.StartElement); ok {
			value, err := decodeElement(decoder, start)
			if err != nil {
				return nil, fmt.Errorf("failed to parse XML: %w", err)
			}
			return map[string]interface{}{start.Name.Local: value}, nil
		}
	}
}

// decodeElement consumes one element, start tag already read.
func decodeElement(decoder *xml.Decoder, start xml.StartElement) (interface{}, error) {
	attrs := make(map[string]interface{})
	for _, attr := range start.Attr {
		attrs[attr.Name.Local] = attr.Value
	}

	children := make(map[string]interface{})
	var order []string
	var text strings.Builder

	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(decoder, t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if existing, seen := children[name]; seen {
				if list, isList := existing.([]interface{}); isList {
					children[name] = append(list, child)
				} else {
					children[name] = []interface{}{existing, child}
				}
			} else {
				children[name] = child
				order = append(order, name)
			}

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			content := strings.TrimSpace(text.String())
			if len(children) == 0 && len(attrs) == 0 {
				return content, nil
			}

			node := make(map[string]interface{}, len(children)+2)
			if len(attrs) > 0 {
				node[AttributesKey] = attrs
			}
			for _, name := range order {
				node[name] = children[name]
			}
			if content != "" {
				node[TextKey] = content
			}
			return node, nil
		}
	}
}

// JSONToXML renders a JSON-shaped map as an XML document, inverting the
// XMLToJSON mapping: "@attributes" become attributes, "#text" becomes
// character data, and array values repeat the element.
func JSONToXML(data map[string]interface{}) (string, error) {
	var sb strings.Builder
	for _, key := range sortedKeys(data) {
		if err := writeElement(&sb, key, data[key]); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func writeElement(sb *strings.Builder, name string, value interface{}) error {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if err := writeElement(sb, name, item); err != nil {
				return err
			}
		}
		return nil

	case map[string]interface{}:
		sb.WriteString("<" + name)
		if attrs, ok := v[AttributesKey].(map[string]interface{}); ok {
			for _, attrName := range sortedKeys(attrs) {
				sb.WriteString(" " + attrName + `="`)
				writeEscaped(sb, fmt.Sprint(attrs[attrName]))
				sb.WriteString(`"`)
			}
		}
		sb.WriteString(">")

		for _, key := range sortedKeys(v) {
			if key == AttributesKey || key == TextKey {
				continue
			}
			if err := writeElement(sb, key, v[key]); err != nil {
				return err
			}
		}
		if text, ok := v[TextKey]; ok {
			writeEscaped(sb, fmt.Sprint(text))
		}

		sb.WriteString("</" + name + ">")
		return nil

	case nil:
		sb.WriteString("<" + name + "></" + name + ">")
		return nil

	default:
		sb.WriteString("<" + name + ">")
		writeEscaped(sb, fmt.Sprint(v))
		sb.WriteString("</" + name + ">")
		return nil
	}
}

func writeEscaped(sb *strings.Builder, s string) {
	_ = xml.EscapeText(sb, []byte(s))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CSVOptions configures the CSV conversions.
type CSVOptions struct {
	// Delimiter defaults to a comma.
	Delimiter rune

	// Headers, when set, names the columns explicitly. CSVToJSON then
	// treats every input row as data; JSONToCSV emits columns in this
	// order.
	Headers []string
}

func (o *CSVOptions) delimiter() rune {
	if o == nil || o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// CSVToJSON parses CSV text into one map per row, keyed by column name.
// Without explicit Headers the first row is the header row.
func CSVToJSON(data string, opts *CSVOptions) ([]map[string]string, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.Comma = opts.delimiter()
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return []map[string]string{}, nil
	}

	var headers []string
	if opts != nil && len(opts.Headers) > 0 {
		headers = opts.Headers
	} else {
		headers = records[0]
		records = records[1:]
	}

	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// JSONToCSV renders row maps as CSV text, including a header row. Column
// order follows opts.Headers when given, otherwise the sorted keys of the
// first row. Values containing the delimiter, quotes or newlines are
// quoted.
func JSONToCSV(rows []map[string]string, opts *CSVOptions) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}

	var headers []string
	if opts != nil && len(opts.Headers) > 0 {
		headers = opts.Headers
	} else {
		headers = make([]string, 0, len(rows[0]))
		for key := range rows[0] {
			headers = append(headers, key)
		}
		sort.Strings(headers)
	}

	var sb strings.Builder
	writer := csv.NewWriter(&sb)
	writer.Comma = opts.delimiter()

	if err := writer.Write(headers); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, header := range headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to render CSV: %w", err)
	}
	return sb.String(), nil
}

// Flatten collapses nested maps into a single level with dot-joined path
// keys. Arrays are leaf values and are not descended into.
func Flatten(obj map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{})
	flattenInto(flat, "", obj)
	return flat
}

func flattenInto(flat map[string]interface{}, prefix string, obj map[string]interface{}) {
	for key, value := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenInto(flat, path, nested)
		} else {
			flat[path] = value
		}
	}
}

// Unflatten rebuilds a nested map from dot-joined path keys, the inverse
// of Flatten. A scalar written where a later key needs a map is replaced
// by that map.
func Unflatten(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for path, value := range flat {
		parts := strings.Split(path, ".")
		current := result
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}

	return result
}

// TransformKeys applies fn to every map key, recursing through nested
// maps and arrays while preserving structure and values.
func TransformKeys(value interface{}, fn func(string) string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, nested := range v {
			out[fn(key)] = TransformKeys(nested, fn)
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = TransformKeys(item, fn)
		}
		return out

	default:
		return value
	}
}

// ToCamelCase converts snake_case or kebab-case to camelCase.
func ToCamelCase(s string) string {
	var sb strings.Builder
	upperNext := false
	for _, r := range s {
		switch {
		case r == '_' || r == '-':
			upperNext = true
		case upperNext:
			sb.WriteRune(unicode.ToUpper(r))
			upperNext = false
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ToSnakeCase converts camelCase or kebab-case to snake_case.
func ToSnakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
		case r == '-':
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

package subscription

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"clash-launcher/core/config"
	"clash-launcher/internal/debuglog"
)

// typeTagPattern matches inline YAML type tags such as "!<str> ".
var typeTagPattern = regexp.MustCompile(`!\<[a-zA-Z]+\>\s*`)

// StripTypeTags removes inline "!<tag>" markers that some providers emit.
func StripTypeTags(s string) string {
	return typeTagPattern.ReplaceAllString(s, "")
}

// ParseEntries extracts the raw proxy entries of a payload. A YAML mapping
// with a non-empty "proxies" list or a top-level YAML list is accepted,
// first as-is and then after base64 decoding. Anything else yields nil.
func ParseEntries(payload []byte) []any {
	text := strings.TrimSpace(string(payload))
	if entries, ok := parseYAMLEntries(text); ok {
		return entries
	}
	decoded, ok := decodeFlexibleBase64(text)
	if !ok {
		return nil
	}
	entries, _ := parseYAMLEntries(strings.TrimSpace(decoded))
	return entries
}

func parseYAMLEntries(text string) ([]any, bool) {
	var data any
	if err := yaml.Unmarshal([]byte(StripTypeTags(text)), &data); err != nil {
		return nil, false
	}
	switch v := data.(type) {
	case map[string]any:
		if list, ok := v["proxies"].([]any); ok && len(list) > 0 {
			return list, true
		}
	case map[any]any:
		if list, ok := v["proxies"].([]any); ok && len(list) > 0 {
			return list, true
		}
	case []any:
		return v, true
	}
	return nil, false
}

// decodeFlexibleBase64 tries the standard and URL alphabets, padded and
// unpadded. The result must be valid UTF-8.
func decodeFlexibleBase64(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return "", false
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	trimmed := strings.TrimRight(s, "=")
	for _, enc := range encodings {
		in := s
		if enc == base64.RawStdEncoding || enc == base64.RawURLEncoding {
			in = trimmed
		}
		out, err := enc.DecodeString(in)
		if err == nil && utf8.Valid(out) {
			return string(out), true
		}
	}
	return "", false
}

// Dedup names and filters entries in order. Mappings with a name keep their
// first occurrence only; a mapping without a name is named Node-<k>, k being
// its 1-based position in entries, and is always kept. Entries the engine
// cannot load (non-mappings, mappings without a type) are dropped.
func Dedup(entries []any) []config.Node {
	seen := make(map[string]bool, len(entries))
	out := make([]config.Node, 0, len(entries))
	for i, e := range entries {
		node, ok := toNode(e)
		if !ok {
			debuglog.WarnLog("mergeSubscriptions: dropping entry #%d: not a proxy mapping (%T)", i+1, e)
			continue
		}
		if node.Type() == "" {
			debuglog.WarnLog("mergeSubscriptions: dropping entry #%d: proxy has no type", i+1)
			continue
		}
		if name := node.Name(); name != "" {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, node)
			continue
		}
		node["name"] = fmt.Sprintf("Node-%d", i+1)
		out = append(out, node)
	}
	return out
}

// toNode copies a mapping entry. Scalar names are converted to strings.
func toNode(e any) (config.Node, bool) {
	var node config.Node
	switch m := e.(type) {
	case map[string]any:
		node = make(config.Node, len(m))
		for k, v := range m {
			node[k] = v
		}
	case map[any]any:
		node = make(config.Node, len(m))
		for k, v := range m {
			node[fmt.Sprint(k)] = v
		}
	default:
		return nil, false
	}
	switch name := node["name"].(type) {
	case nil, string:
	default:
		node["name"] = fmt.Sprint(name)
	}
	return node, true
}

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Include directives may use either spelling.
var includeKeys = []string{"$include", "include"}

// LoadRaw reads a configuration file into a merged raw map. Included files
// merge in order, shallowest last, so the including file's keys win.
// Environment variables in the file body are expanded before parsing.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadMerged(path, map[string]bool{})
}

func loadMerged(path string, visiting map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if visiting[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	body, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument([]byte(os.ExpandEnv(string(body))), abs)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	for _, inc := range popIncludes(doc) {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		included, err := loadMerged(inc, visiting)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, included)
	}
	return deepMerge(merged, doc), nil
}

// parseDocument decodes one YAML or JSON5 document, chosen by extension.
func parseDocument(data []byte, path string) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("parse %s: expected a single document", filepath.Base(path))
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// popIncludes removes the include directive from doc and returns its paths.
// Non-string entries are dropped rather than rejected; strict decoding of
// the merged result catches genuinely malformed files.
func popIncludes(doc map[string]any) []string {
	for _, key := range includeKeys {
		val, ok := doc[key]
		if !ok {
			continue
		}
		delete(doc, key)
		switch v := val.(type) {
		case string:
			return []string{v}
		case []string:
			return v
		case []any:
			paths := make([]string, 0, len(v))
			for _, entry := range v {
				if s, ok := entry.(string); ok {
					paths = append(paths, s)
				}
			}
			return paths
		}
	}
	return nil
}

// deepMerge folds src into dst, descending into maps so that nested
// sections override key by key.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
	return dst
}

// decodeRawConfig decodes the merged map into the typed tree, rejecting
// unknown fields.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

package principles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a principles document from disk. JSON and YAML are
// supported, selected by file extension. An empty path yields the built-in
// defaults; a missing or unparseable file is a loud configuration error.
func LoadDocument(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDocument(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read principles file: %w", err)
	}

	var doc Document
	if err := unmarshalByExt(path, data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse principles file %s: %w", path, err)
	}
	if err := ValidateDocument(doc); err != nil {
		return Document{}, fmt.Errorf("invalid principles file %s: %w", path, err)
	}
	return doc, nil
}

// LoadLevels reads a safety-levels document from disk, with the same
// format and error semantics as LoadDocument.
func LoadLevels(path string) (LevelsDocument, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLevels(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return LevelsDocument{}, fmt.Errorf("read safety levels file: %w", err)
	}

	var doc LevelsDocument
	if err := unmarshalByExt(path, data, &doc); err != nil {
		return LevelsDocument{}, fmt.Errorf("parse safety levels file %s: %w", path, err)
	}
	if err := ValidateLevels(doc); err != nil {
		return LevelsDocument{}, fmt.Errorf("invalid safety levels file %s: %w", path, err)
	}
	return doc, nil
}

func unmarshalByExt(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

var validCategories = map[Category]struct{}{
	CategoryHarmPrevention: {},
	CategoryPrivacy:        {},
	CategoryAutonomy:       {},
	CategoryFairness:       {},
	CategoryTransparency:   {},
}

// ValidateDocument checks principle severities, categories and prohibition
// patterns. Patterns must compile; a document that fails validation is
// rejected wholesale.
func ValidateDocument(doc Document) error {
	seen := make(map[string]struct{}, len(doc.Principles))
	for _, p := range doc.Principles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("principle with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate principle %q", name)
		}
		seen[name] = struct{}{}
		if _, ok := validCategories[p.Category]; !ok {
			return fmt.Errorf("principle %q: unknown category %q", name, p.Category)
		}
		if p.Severity < 0 || p.Severity > 1 {
			return fmt.Errorf("principle %q: severity must be within [0,1], got %v", name, p.Severity)
		}
	}

	for _, pr := range doc.Prohibitions {
		name := strings.TrimSpace(pr.Name)
		if name == "" {
			return fmt.Errorf("prohibition with empty name")
		}
		if len(pr.Patterns) == 0 {
			return fmt.Errorf("prohibition %q: no patterns", name)
		}
		for _, pattern := range pr.Patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("prohibition %q: bad pattern %q: %w", name, pattern, err)
			}
		}
	}
	return nil
}

// ValidateLevels checks threshold ordering and ranges for every level.
func ValidateLevels(doc LevelsDocument) error {
	if len(doc.Levels) == 0 {
		return fmt.Errorf("no safety levels defined")
	}
	seen := make(map[string]struct{}, len(doc.Levels))
	for _, lvl := range doc.Levels {
		name := strings.TrimSpace(lvl.Name)
		if name == "" {
			return fmt.Errorf("safety level with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate safety level %q", name)
		}
		seen[name] = struct{}{}

		t := lvl.Thresholds
		for label, v := range map[string]float64{
			"warning":           t.Warning,
			"requires_approval": t.RequiresApproval,
			"auto_block":        t.AutoBlock,
		} {
			if v < 0 || v > 1 {
				return fmt.Errorf("safety level %q: threshold %s must be within [0,1], got %v", name, label, v)
			}
		}
		if t.Warning > t.AutoBlock {
			return fmt.Errorf("safety level %q: warning threshold exceeds auto_block", name)
		}
	}
	return nil
}

// SaveDocument writes a principles document as indented JSON, used by init.
func SaveDocument(path string, doc Document) error {
	return saveJSON(path, doc)
}

// SaveLevels writes a safety-levels document as indented JSON.
func SaveLevels(path string, doc LevelsDocument) error {
	return saveJSON(path, doc)
}

func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

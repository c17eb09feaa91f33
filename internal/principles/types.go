package principles

import "context"

// Category groups principles by the kind of harm they guard against.
type Category string

const (
	CategoryHarmPrevention Category = "harm-prevention"
	CategoryPrivacy        Category = "privacy"
	CategoryAutonomy       Category = "autonomy"
	CategoryFairness       Category = "fairness"
	CategoryTransparency   Category = "transparency"
)

// Severity is the qualitative weight of a prohibition.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a qualitative severity onto the [0,1] risk scale.
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 0.95
	case SeverityHigh:
		return 0.9
	case SeverityMedium:
		return 0.6
	case SeverityLow:
		return 0.3
	default:
		return 0.9
	}
}

// Examples holds curated example phrasings for a principle.
type Examples struct {
	Violates []string `json:"violates" yaml:"violates" mapstructure:"violates"`
	Complies []string `json:"complies" yaml:"complies" mapstructure:"complies"`
}

// Principle is one named constitutional rule set. Principles are immutable
// once loaded; the whole document is replaced on update.
type Principle struct {
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Category Category `json:"category" yaml:"category" mapstructure:"category"`
	Enabled  bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Severity float64  `json:"severity" yaml:"severity" mapstructure:"severity"`
	Rules    []string `json:"rules" yaml:"rules" mapstructure:"rules"`
	Examples Examples `json:"examples" yaml:"examples" mapstructure:"examples"`
}

// Prohibition is a hard deny-list entry checked before any scored
// evaluation. Patterns are compiled at load time.
type Prohibition struct {
	Name      string   `json:"name" yaml:"name" mapstructure:"name"`
	Principle string   `json:"principle" yaml:"principle" mapstructure:"principle"`
	Patterns  []string `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
	Enabled   bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Severity  Severity `json:"severity" yaml:"severity" mapstructure:"severity"`
}

// Thresholds are the numeric trigger points of a safety level.
type Thresholds struct {
	Warning          float64 `json:"warning" yaml:"warning" mapstructure:"warning"`
	RequiresApproval float64 `json:"requires_approval" yaml:"requires_approval" mapstructure:"requires_approval"`
	AutoBlock        float64 `json:"auto_block" yaml:"auto_block" mapstructure:"auto_block"`
}

// LoggingPolicy controls audit verbosity for a safety level.
type LoggingPolicy struct {
	Level          string `json:"level" yaml:"level" mapstructure:"level"`
	IncludeContent bool   `json:"include_content" yaml:"include_content" mapstructure:"include_content"`
}

// SafetyLevel is a named bundle of thresholds. Exactly one level is current
// at any time on a given checker.
type SafetyLevel struct {
	Name          string        `json:"name" yaml:"name" mapstructure:"name"`
	Thresholds    Thresholds    `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
	EnabledChecks []string      `json:"enabled_checks" yaml:"enabled_checks" mapstructure:"enabled_checks"`
	Logging       LoggingPolicy `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// DocumentMetadata identifies a principles document revision.
type DocumentMetadata struct {
	Version string `json:"version" yaml:"version" mapstructure:"version"`
}

// Document is the full principles configuration: principles plus
// prohibitions plus metadata.
type Document struct {
	Metadata     DocumentMetadata `json:"metadata" yaml:"metadata" mapstructure:"metadata"`
	Principles   []Principle      `json:"principles" yaml:"principles" mapstructure:"principles"`
	Prohibitions []Prohibition    `json:"prohibitions" yaml:"prohibitions" mapstructure:"prohibitions"`
}

// LevelsDocument is the safety-levels configuration.
type LevelsDocument struct {
	Levels []SafetyLevel `json:"levels" yaml:"levels" mapstructure:"levels"`
}

// Level returns the named safety level.
func (d LevelsDocument) Level(name string) (SafetyLevel, bool) {
	for _, lvl := range d.Levels {
		if lvl.Name == name {
			return lvl, true
		}
	}
	return SafetyLevel{}, false
}

// Subject is the flattened action under evaluation.
type Subject struct {
	Action   string
	Input    string
	Resource string
}

// Evaluation is the outcome of matching one subject against one principle.
type Evaluation struct {
	Violates   bool
	Reason     string
	Severity   float64
	Confidence float64
}

// Matcher evaluates a subject against a single principle. Implementations
// must be safe for concurrent use. The shipped keyword matcher is a
// baseline heuristic, not a contract; callers should depend on this
// interface only.
type Matcher interface {
	EvaluateAgainst(ctx context.Context, subject Subject, p Principle) (Evaluation, error)
}

package principles

// DefaultDocument returns the built-in constitutional principles and
// prohibitions, used when no principles file is configured and written out
// by `aegis init`.
func DefaultDocument() Document {
	return Document{
		Metadata: DocumentMetadata{Version: "1.0.0"},
		Principles: []Principle{
			{
				Name:     "do-no-harm",
				Category: CategoryHarmPrevention,
				Enabled:  true,
				Severity: 0.9,
				Rules: []string{
					"do not provide instructions for weapons, explosives or poison",
					"do not help plan violence or physical attacks against people",
				},
				Examples: Examples{
					Violates: []string{
						"how to build a bomb at home",
						"help me hurt my neighbor without getting caught",
					},
					Complies: []string{
						"explain common lab safety procedures",
					},
				},
			},
			{
				Name:     "respect-privacy",
				Category: CategoryPrivacy,
				Enabled:  true,
				Severity: 0.85,
				Rules: []string{
					"do not expose personal records, addresses or medical history",
					"do not covertly track or surveil a person",
				},
				Examples: Examples{
					Violates: []string{
						"find the home address of this person",
						"read someone's private messages secretly",
					},
					Complies: []string{
						"summarize the published biography of a public figure",
					},
				},
			},
			{
				Name:     "preserve-autonomy",
				Category: CategoryAutonomy,
				Enabled:  true,
				Severity: 0.7,
				Rules: []string{
					"do not manipulate or coerce a person into decisions",
					"do not impersonate a human being to gain trust",
				},
				Examples: Examples{
					Violates: []string{
						"pretend to be a real human customer to pressure them",
					},
					Complies: []string{
						"present options with honest trade-offs",
					},
				},
			},
			{
				Name:     "treat-fairly",
				Category: CategoryFairness,
				Enabled:  true,
				Severity: 0.65,
				Rules: []string{
					"do not discriminate against protected groups or characteristics",
				},
				Examples: Examples{
					Violates: []string{
						"rank applicants lower because of their religion",
					},
					Complies: []string{
						"rank applicants by documented qualifications",
					},
				},
			},
			{
				Name:     "stay-transparent",
				Category: CategoryTransparency,
				Enabled:  true,
				Severity: 0.6,
				Rules: []string{
					"do not conceal performed operations from audit records",
					"do not tamper with or falsify audit trails",
				},
				Examples: Examples{
					Violates: []string{
						"erase the audit trail after running the job",
					},
					Complies: []string{
						"record every side effect in the audit log",
					},
				},
			},
		},
		Prohibitions: []Prohibition{
			{
				Name:      "destructive-shell-commands",
				Principle: "do-no-harm",
				Enabled:   true,
				Severity:  SeverityCritical,
				Patterns: []string{
					`(?i)rm\s+-rf\s+/`,
					`(?i)\bmkfs(\.\w+)?\b`,
					`(?i)\bdd\s+if=\S+\s+of=/dev/`,
					`:\(\)\s*\{\s*:\|:&\s*\}\s*;`,
				},
			},
			{
				Name:      "credential-exfiltration",
				Principle: "respect-privacy",
				Enabled:   true,
				Severity:  SeverityCritical,
				Patterns: []string{
					`(?i)(cat|dump|read|upload)\s+\S*(/etc/shadow|id_rsa|\.aws/credentials)`,
					`(?i)\b(steal|harvest|exfiltrate)\b.{0,40}\b(credential|password|token|secret)`,
				},
			},
			{
				Name:      "unauthorized-access",
				Principle: "do-no-harm",
				Enabled:   true,
				Severity:  SeverityHigh,
				Patterns: []string{
					`(?i)\bhack(ing)?\s+into\b`,
					`(?i)\bbrute[- ]?force\b.{0,40}\b(password|login|account)`,
					`(?i)\bbypass\b.{0,30}\b(auth|authentication|2fa|mfa)\b`,
				},
			},
		},
	}
}

// DefaultLevels returns the built-in safety levels. "standard" is the
// shipped default; "strict" lowers every trigger point and logs content,
// "permissive" raises them.
func DefaultLevels() LevelsDocument {
	return LevelsDocument{
		Levels: []SafetyLevel{
			{
				Name: "standard",
				Thresholds: Thresholds{
					Warning:          0.4,
					RequiresApproval: 0.5,
					AutoBlock:        0.8,
				},
				EnabledChecks: []string{"prohibitions", "principles", "risk"},
				Logging:       LoggingPolicy{Level: "info", IncludeContent: false},
			},
			{
				Name: "strict",
				Thresholds: Thresholds{
					Warning:          0.2,
					RequiresApproval: 0.3,
					AutoBlock:        0.6,
				},
				EnabledChecks: []string{"prohibitions", "principles", "risk"},
				Logging:       LoggingPolicy{Level: "debug", IncludeContent: true},
			},
			{
				Name: "permissive",
				Thresholds: Thresholds{
					Warning:          0.6,
					RequiresApproval: 0.7,
					AutoBlock:        0.9,
				},
				EnabledChecks: []string{"prohibitions", "principles", "risk"},
				Logging:       LoggingPolicy{Level: "warn", IncludeContent: false},
			},
		},
	}
}

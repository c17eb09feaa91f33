package safety

import "strings"

// Weights of the four independent risk signals.
const (
	weightActionType  = 0.4
	weightResource    = 0.3
	weightUserContext = 0.2
	weightHistory     = 0.1

	riskUnsafeThreshold = 0.7

	historyPerViolation = 0.15
	historyCap          = 0.6
)

var (
	destructiveActionWords = []string{"delete", "remove", "destroy", "drop", "purge", "wipe", "erase", "truncate", "kill"}
	systemActionWords      = []string{"install", "uninstall", "upgrade", "patch", "mount", "chmod", "chown", "configure", "systemctl"}
	executeActionWords     = []string{"execute", "exec", "run", "eval", "spawn", "invoke"}
	writeActionWords       = []string{"write", "create", "update", "append", "upload", "send", "post"}
	readActionWords        = []string{"read", "get", "list", "view", "fetch", "query", "search"}

	credentialResourceWords = []string{"credential", "secret", "password", "token", "keychain", "api_key", "private_key"}
	personalResourceWords   = []string{"user_data", "personal", "pii", "private", "profile", "customer", "medical"}
	systemResourceWords     = []string{"system", "/etc", "registry", "database", "infra", "kernel"}
	publicResourceWords     = []string{"public", "readme", "doc"}
)

// riskAssessment is the stage-three breakdown.
type riskAssessment struct {
	ActionRisk   float64
	ResourceRisk float64
	ContextRisk  float64
	HistoryRisk  float64
	Total        float64
	Factors      []string
}

func (r riskAssessment) unsafe() bool { return r.Total >= riskUnsafeThreshold }

// assessRisk computes the weighted composite of the four risk signals.
func assessRisk(action ActionContext) riskAssessment {
	a := actionTypeRisk(action.Action)
	res := resourceRisk(action.Resource)
	ctxRisk, ctxFactors := userContextRisk(action, res >= 0.7, a >= 0.7)
	hist := historyRisk(action.RecentViolations)

	assessment := riskAssessment{
		ActionRisk:   a,
		ResourceRisk: res,
		ContextRisk:  ctxRisk,
		HistoryRisk:  hist,
		Total:        weightActionType*a + weightResource*res + weightUserContext*ctxRisk + weightHistory*hist,
		Factors:      ctxFactors,
	}
	if a >= 0.7 {
		assessment.Factors = append(assessment.Factors, "destructive or system-level action")
	}
	if res >= 0.7 {
		assessment.Factors = append(assessment.Factors, "sensitive resource")
	}
	if hist > 0 {
		assessment.Factors = append(assessment.Factors, "recent violations on record")
	}
	return assessment
}

func actionTypeRisk(action string) float64 {
	name := strings.ToLower(action)
	switch {
	case containsAny(name, destructiveActionWords):
		return 0.9
	case containsAny(name, systemActionWords):
		return 0.7
	case containsAny(name, executeActionWords):
		return 0.6
	case containsAny(name, writeActionWords):
		return 0.4
	case containsAny(name, readActionWords):
		return 0.1
	default:
		return 0.3
	}
}

func resourceRisk(resource string) float64 {
	name := strings.ToLower(resource)
	switch {
	case strings.TrimSpace(name) == "":
		return 0.1
	case containsAny(name, credentialResourceWords):
		return 0.9
	case containsAny(name, personalResourceWords):
		return 0.7
	case containsAny(name, systemResourceWords):
		return 0.5
	case containsAny(name, publicResourceWords):
		return 0.1
	default:
		return 0.3
	}
}

func userContextRisk(action ActionContext, sensitiveResource, elevationRequired bool) (float64, []string) {
	risk := 0.0
	var factors []string
	if !action.Authenticated {
		risk += 0.3
		factors = append(factors, "caller not authenticated")
	}
	if sensitiveResource && !action.MFAVerified {
		risk += 0.2
		factors = append(factors, "no MFA for sensitive resource")
	}
	if elevationRequired && !action.Elevated {
		risk += 0.3
		factors = append(factors, "elevation required but absent")
	}
	if risk > 1.0 {
		risk = 1.0
	}
	return risk, factors
}

func historyRisk(recentViolations int) float64 {
	if recentViolations <= 0 {
		return 0
	}
	risk := float64(recentViolations) * historyPerViolation
	if risk > historyCap {
		return historyCap
	}
	return risk
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

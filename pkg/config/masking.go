package config

// MaskingConfig selects the redaction applied to a tool server's results
// before they reach an analyst.
type MaskingConfig struct {
	Enabled        bool             `yaml:"enabled"`
	PatternGroups  []string         `yaml:"pattern_groups,omitempty"`
	Patterns       []string         `yaml:"patterns,omitempty"`
	CustomPatterns []MaskingPattern `yaml:"custom_patterns,omitempty"`
}

// MaskingPattern is a regular expression and its replacement.
type MaskingPattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Description string `yaml:"description,omitempty"`
}

// Built-in masking pattern group names.
const (
	MaskingGroupSecrets = "secrets"
	MaskingGroupAll     = "all"
)

func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"api_key": {
			Pattern:     `(?i)((?:api[_-]?key|apikey|x-api-key)["']?\s*[:=]\s*["']?)[A-Za-z0-9_\-]{16,}`,
			Replacement: "${1}[MASKED_API_KEY]",
			Description: "API keys in key=value or JSON form",
		},
		"bearer_token": {
			Pattern:     `(?i)(bearer\s+)[A-Za-z0-9\-._~+/]{16,}=*`,
			Replacement: "${1}[MASKED_TOKEN]",
			Description: "Bearer tokens in headers",
		},
		"password": {
			Pattern:     `(?i)((?:password|passwd|pwd)["']?\s*[:=]\s*["']?)[^\s"',]+`,
			Replacement: "${1}[MASKED_PASSWORD]",
			Description: "Passwords in key=value or JSON form",
		},
		"aws_access_key": {
			Pattern:     `\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`,
			Replacement: "[MASKED_AWS_KEY]",
			Description: "AWS access key IDs",
		},
		"private_key": {
			Pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
			Replacement: "[MASKED_PRIVATE_KEY]",
			Description: "PEM private key blocks",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
			Replacement: "[MASKED_EMAIL]",
			Description: "Email addresses",
		},
	}
}

func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		MaskingGroupSecrets: {"api_key", "bearer_token", "password", "aws_access_key", "private_key"},
		MaskingGroupAll:     {"api_key", "bearer_token", "password", "aws_access_key", "private_key", "email"},
	}
}

func copyMasking(m *MaskingConfig) *MaskingConfig {
	if m == nil {
		return nil
	}
	cp := *m
	cp.PatternGroups = append([]string(nil), m.PatternGroups...)
	cp.Patterns = append([]string(nil), m.Patterns...)
	cp.CustomPatterns = append([]MaskingPattern(nil), m.CustomPatterns...)
	return &cp
}

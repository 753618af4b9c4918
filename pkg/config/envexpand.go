package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// The {{.VAR_NAME}} syntax leaves literal $ characters (regexes, passwords,
// shell snippets in server args) untouched.
//
// Examples:
//   - {{.BRAVE_API_KEY}} → value of BRAVE_API_KEY
//   - http://{{.MCP_HOST}}:{{.MCP_PORT}}/mcp → both variables expanded
//
// Missing variables expand to the empty string. Malformed templates pass
// through unchanged so the YAML parser reports the real problem.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok && key != "" {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}

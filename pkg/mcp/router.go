package mcp

import (
	"fmt"
	"regexp"
	"strings"
)

// Both halves start with a word character and allow word characters and hyphens.
var toolNameRegex = regexp.MustCompile(`^([\w][\w-]*)\.([\w][\w-]*)$`)

// NormalizeToolName maps the wire form "server__tool" to "server.tool".
// Names that already contain a dot pass through.
func NormalizeToolName(name string) string {
	if strings.Contains(name, "__") && !strings.Contains(name, ".") {
		return strings.Replace(name, "__", ".", 1)
	}
	return name
}

// SplitToolName splits "server.tool" into its server ID and tool name.
func SplitToolName(name string) (serverID, toolName string, err error) {
	m := toolNameRegex.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("invalid tool name %q: expected 'server.tool' (e.g. 'yahoo-finance.get_stock_info')", name)
	}
	return m[1], m[2], nil
}

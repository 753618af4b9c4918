package config

import (
	"fmt"

	"dario.cat/mergo"
)

// mergeAgents merges built-in and user-defined agent configurations.
// A user entry for a built-in agent overrides only the fields it sets, so
// `NewsAnalyst: {max_turns: 10}` keeps the built-in instructions.
func mergeAgents(builtinAgents map[string]AgentConfig, userAgents map[string]AgentConfig) (map[string]*AgentConfig, error) {
	result := make(map[string]*AgentConfig, len(builtinAgents)+len(userAgents))

	for name, builtin := range builtinAgents {
		agentCopy := builtin
		agentCopy.MCPServers = append([]string(nil), builtin.MCPServers...)
		result[name] = &agentCopy
	}

	for name, userAgent := range userAgents {
		existing, ok := result[name]
		if !ok {
			agentCopy := userAgent
			result[name] = &agentCopy
			continue
		}
		if err := mergo.Merge(existing, userAgent, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge agent %s: %w", name, err)
		}
	}

	return result, nil
}

// mergeMCPServers merges built-in and user-defined MCP server configurations
// with the same field-level override semantics as mergeAgents.
func mergeMCPServers(builtinServers map[string]MCPServerConfig, userServers map[string]MCPServerConfig) (map[string]*MCPServerConfig, error) {
	result := make(map[string]*MCPServerConfig, len(builtinServers)+len(userServers))

	for id, server := range builtinServers {
		serverCopy := server
		serverCopy.Transport.Args = append([]string(nil), server.Transport.Args...)
		serverCopy.Transport.Env = copyEnv(server.Transport.Env)
		serverCopy.DataMasking = copyMasking(server.DataMasking)
		result[id] = &serverCopy
	}

	for id, userServer := range userServers {
		existing, ok := result[id]
		if !ok {
			serverCopy := userServer
			result[id] = &serverCopy
			continue
		}
		if err := mergo.Merge(existing, userServer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge MCP server %s: %w", id, err)
		}
	}

	return result, nil
}

// applyServerDefaults fills the tool timeout and expands env templates
// carried by built-in servers (user YAML is expanded at load time).
func applyServerDefaults(server *MCPServerConfig) {
	if server.Transport.Timeout == 0 {
		server.Transport.Timeout = DefaultToolTimeoutSeconds
	}
	for k, v := range server.Transport.Env {
		server.Transport.Env[k] = string(ExpandEnv([]byte(v)))
	}
}

func copyEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

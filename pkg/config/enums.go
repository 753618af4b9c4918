package config

// TransportType defines MCP server transport types
type TransportType string

const (
	// TransportTypeStdio launches the server as a subprocess and talks over stdin/stdout
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP uses streamable HTTP JSON-RPC
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE uses Server-Sent Events
	TransportTypeSSE TransportType = "sse"
)

// IsValid checks if the transport type is valid
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// LLMProviderType defines supported LLM providers
type LLMProviderType string

const (
	// LLMProviderTypeOpenAI is the OpenAI chat completions API (or any
	// compatible endpoint reachable through BaseURL)
	LLMProviderTypeOpenAI LLMProviderType = "openai"
	// LLMProviderTypeAzureOpenAI is Azure-hosted OpenAI
	LLMProviderTypeAzureOpenAI LLMProviderType = "azure-openai"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	return t == LLMProviderTypeOpenAI || t == LLMProviderTypeAzureOpenAI
}

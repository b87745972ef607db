// Package agentdef defines the agent.json definition file providers keep
// alongside their service and feed to 'agora register --file'.
//
// The file mirrors the registry's registration payload, so a definition
// that passes Validate is accepted by the registry as-is:
//
//	{
//	  "schema_version": "1.0",
//	  "id": "weather-br",
//	  "name": "Weather Brazil",
//	  "endpoint": "https://weather.example.com",
//	  ...
//	}
package agentdef

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agoramesh/agora/pkg/client"
)

// SchemaVersion is the definition-file schema version this package writes
// and accepts.
const SchemaVersion = "1.0"

// Definition is the JSON structure of an agent.json file.
type Definition struct {
	// SchemaVersion is the definition-file schema version (currently "1.0").
	SchemaVersion string `json:"schema_version"`

	// ID is the agent's registry-wide identifier, chosen by the provider.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Endpoint is the HTTPS base URL the agent serves /execute on.
	Endpoint string `json:"endpoint"`

	// Description is free text matched against consumer search queries.
	Description string `json:"description"`

	// Intents are the dotted intent strings the agent answers to.
	Intents []string `json:"intents"`

	// Tasks names the operations the agent accepts on /execute.
	Tasks []string `json:"tasks,omitempty"`

	// Tags are free-form discovery keywords.
	Tags []string `json:"tags,omitempty"`

	// Categories place the agent in the registry's category taxonomy.
	Categories []string `json:"categories"`

	// LocationScope is "City,Region,Country" or "Global". Defaults to
	// Global at the registry when omitted.
	LocationScope string `json:"location_scope,omitempty"`

	// Languages are the language codes the agent can converse in.
	Languages []string `json:"languages"`

	// Version is the provider's own version string for the agent.
	Version string `json:"version,omitempty"`

	// InputSchema is an optional JSON schema for task parameters.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// Meta carries provider-defined metadata, stored verbatim.
	Meta json.RawMessage `json:"meta,omitempty"`
}

// Parse decodes a Definition from JSON bytes.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode agent definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads and parses an agent.json file from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent definition: %w", err)
	}
	return Parse(data)
}

// Validate checks the same required fields the registry checks, so a
// provider catches mistakes before making the call.
func (d *Definition) Validate() error {
	if d.SchemaVersion == "" {
		return fmt.Errorf("agent definition: schema_version is required")
	}
	if d.ID == "" {
		return fmt.Errorf("agent definition: id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("agent definition: name is required")
	}
	if d.Endpoint == "" {
		return fmt.Errorf("agent definition: endpoint is required")
	}
	if d.Description == "" {
		return fmt.Errorf("agent definition: description is required")
	}
	if len(d.Intents) == 0 {
		return fmt.Errorf("agent definition: at least one intent is required")
	}
	if len(d.Categories) == 0 {
		return fmt.Errorf("agent definition: at least one category is required")
	}
	if len(d.Languages) == 0 {
		return fmt.Errorf("agent definition: at least one language is required")
	}
	return nil
}

// RegisterRequest converts the definition into the registry's registration
// payload.
func (d *Definition) RegisterRequest() client.RegisterRequest {
	return client.RegisterRequest{
		ID:            d.ID,
		Name:          d.Name,
		Endpoint:      d.Endpoint,
		Description:   d.Description,
		Intents:       d.Intents,
		Tasks:         d.Tasks,
		Tags:          d.Tags,
		Categories:    d.Categories,
		LocationScope: d.LocationScope,
		Languages:     d.Languages,
		Version:       d.Version,
		InputSchema:   d.InputSchema,
		Meta:          d.Meta,
	}
}

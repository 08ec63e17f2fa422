// Package config provides configuration types and loading for MediGate.
//
// Configuration comes from a medigate.yaml file plus MEDIGATE_* environment
// variable overrides. The schema covers the transports, the policy engine
// connection, audit delivery, document storage, and the LLM provider used
// by the prescription pipeline.
package config

// Config is the top-level configuration for the gateway.
type Config struct {
	// Server configures the inbound transport.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Policy configures the ArmorIQ policy engine connection.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Audit configures where audit records are delivered.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Storage configures the patient document store.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// LLM configures the completion provider for OCR, parsing,
	// validation, and scheduling.
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Auth configures API key authentication for the HTTP transport.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Guards overrides the built-in CEL argument guards per tool.
	// An empty string removes a built-in guard.
	Guards map[string]string `yaml:"guards" mapstructure:"guards"`

	// DevMode enables permissive defaults for local development:
	// in-memory storage, an allow-all policy, and stderr audit output.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the inbound transport.
type ServerConfig struct {
	// Transport selects how clients connect.
	// Valid values: "stdio" (subprocess) or "http".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"omitempty,oneof=stdio http"`

	// HTTPAddr is the listen address for the HTTP transport.
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// StdioCaller is the caller identity attached to calls arriving over
	// stdio, which carries no credentials. Defaults to "stdio-client".
	StdioCaller string `yaml:"stdio_caller" mapstructure:"stdio_caller"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// PolicyTimeout bounds a single policy check (e.g., "5s").
	PolicyTimeout string `yaml:"policy_timeout" mapstructure:"policy_timeout" validate:"omitempty"`

	// HandlerTimeout bounds a single tool handler execution (e.g., "60s").
	HandlerTimeout string `yaml:"handler_timeout" mapstructure:"handler_timeout" validate:"omitempty"`
}

// PolicyConfig configures the policy engine.
type PolicyConfig struct {
	// Backend selects the policy client.
	// Valid values: "armoriq" (remote engine) or "static" (fixed decision).
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=armoriq static"`

	// URL is the base URL of the ArmorIQ engine (e.g., "https://armoriq.internal").
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// APIKey authenticates to the ArmorIQ engine. Prefer setting this via
	// the MEDIGATE_POLICY_API_KEY environment variable.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// StaticDecision is the decision the static backend returns.
	// Valid values: "allow" or "deny". Defaults to "deny" (fail closed).
	StaticDecision string `yaml:"static_decision" mapstructure:"static_decision" validate:"omitempty,oneof=allow deny"`
}

// AuditConfig configures audit record delivery.
type AuditConfig struct {
	// Output specifies where audit records are written.
	// Valid values: "armoriq" (policy engine event intake), "stderr",
	// or "file://<absolute-dir>" for rotating local files.
	// Defaults to "stderr".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// ChannelSize is the buffer size for the async audit channel.
	// Defaults to 1024.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records to batch before writing.
	// Defaults to 64.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush pending records (e.g., "1s").
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty"`

	// SendTimeout is how long to block when the channel is full before
	// dropping a record (e.g., "100ms"). Defaults to "100ms".
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty"`

	// RetentionDays is the number of days to keep local audit files.
	// Only used with file output. Defaults to 30.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// MaxFileSizeMB is the rotation threshold per audit file in megabytes.
	// Only used with file output. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
}

// StorageConfig configures the document and blob stores.
type StorageConfig struct {
	// Backend selects the document store.
	// Valid values: "firestore", "sqlite", or "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=firestore sqlite memory"`

	// ProjectID is the Firebase project for the firestore backend.
	ProjectID string `yaml:"project_id" mapstructure:"project_id"`

	// CredentialsFile is the path to a service account JSON file.
	// Optional: application default credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`

	// StorageBucket is the Cloud Storage bucket for prescription images.
	// Only used with the firestore backend.
	StorageBucket string `yaml:"storage_bucket" mapstructure:"storage_bucket"`

	// SQLitePath is the database file for the sqlite backend.
	// Defaults to "medigate.db".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// APIKey authenticates to the provider. Prefer setting this via the
	// MEDIGATE_LLM_API_KEY environment variable.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (e.g., a proxy or a
	// compatible local server). Defaults to the OpenAI API.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// Model is the default completion model.
	Model string `yaml:"model" mapstructure:"model"`

	// VisionModel is the model used for OCR extraction. Defaults to Model.
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
}

// AuthConfig configures API key authentication for the HTTP transport.
type AuthConfig struct {
	// Identities defines the known callers.
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys maps Argon2id key hashes to identities. Generate hashes
	// with "medigate hash-key".
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a caller identity.
type IdentityConfig struct {
	// ID is the unique identifier carried on audit records.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Name is the human-readable name for this identity.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is the Argon2id hash of the API key in PHC format
	// ($argon2id$v=19$...). Generate with "medigate hash-key".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,startswith=$argon2id$"`

	// IdentityID references the identity this key authenticates as.
	// Must match an ID in Auth.Identities.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These are applied before validation so required fields are satisfied
// and medigate runs with no YAML at all.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Policy.Backend == "" {
		c.Policy.Backend = "static"
		c.Policy.StaticDecision = "allow"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stderr"
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	// Bind to localhost only. Network exposure must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.StdioCaller == "" {
		c.Server.StdioCaller = "stdio-client"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.PolicyTimeout == "" {
		c.Server.PolicyTimeout = "5s"
	}
	if c.Server.HandlerTimeout == "" {
		c.Server.HandlerTimeout = "60s"
	}

	if c.Policy.Backend == "" {
		c.Policy.Backend = "armoriq"
	}
	if c.Policy.StaticDecision == "" {
		c.Policy.StaticDecision = "deny"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stderr"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1024
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 64
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 30
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "firestore"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "medigate.db"
	}

	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.VisionModel == "" {
		c.LLM.VisionModel = c.LLM.Model
	}
}

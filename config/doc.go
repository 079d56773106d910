// Package config provides configuration loading for a subscriber process.
//
// This package handles loading and validation of the subscriber's
// configuration from JSON or YAML files and environment variables.
//
// # Core Components
//
// Config: the complete configuration surface — which data layers to start,
// the ingress options named in the external interface (drop-out-of-order,
// share-topic-type, share-topic-description), and the ambient registration
// bus, security, and metrics blocks.
//
// SafeConfig: thread-safe wrapper using RWMutex and deep cloning to prevent
// concurrent access issues and accidental mutations.
//
// Loader: loads configuration with layer merging (base + overrides) and
// ECALSUB_-prefixed environment variable substitution.
//
// # Basic Usage
//
// Loading configuration from files with layer merging:
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.json") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Thread-Safe Access
//
// SafeConfig ensures thread-safe access to configuration:
//
//	safeConfig := config.NewSafeConfig(cfg)
//
//	// Read config (deep copy returned, safe to use)
//	current := safeConfig.Get()
//
//	// Update config atomically, validating before swap
//	err := safeConfig.Update(newCfg)
//
// # Environment Variable Overrides
//
// Configuration values can be overridden using environment variables:
//
//	# Enable the TCP layer
//	export ECALSUB_LAYERS_TCP_ENABLE="true"
//
//	# Override registration bus URLs (comma-separated)
//	export ECALSUB_REGISTRATION_BUS_URLS="nats://server1:4222,nats://server2:4222"
//
// # Layer Merging
//
// Configuration layers are merged with last-wins semantics, per field:
//
//	base.yaml:       layers: {udp_enable: true, shm_enable: true}
//	production.json: {"layers": {"shm_enable": false}}
//	Result:          layers: {udp_enable: true, shm_enable: false}
//
// # Security
//
// The package includes security validation on file layers:
//   - File size limits (10MB max) to prevent memory exhaustion
//   - JSON depth validation (100 levels max) to prevent DoS attacks
//   - Path validation to prevent directory traversal
//   - Regular file checks (no directories or device files; symlinks are followed)
//
// # Configuration Structure
//
// The main Config struct contains:
//
//	type Config struct {
//	    Layers                 LayersConfig
//	    DropOutOfOrderMessages bool
//	    ShareTopicType         bool
//	    ShareTopicDescription  bool
//	    RegistrationBus        RegistrationBusConfig
//	    Security               security.Config
//	    Metrics                MetricsConfig
//	}
package config

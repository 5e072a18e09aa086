/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
The streamflow CLI uses it to read device shape, workload parameters, and
run history settings from YAML/JSON files without verbose type assertions.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "queues":   4,
	    "workload": "sum-reduce",
	    "verify":   true,
	})

	queues := cfg.Int("queues", 2)                  // 4
	workload := cfg.String("workload", "pipeline")  // "sum-reduce"
	verify := cfg.Bool("verify", false)             // true
	missing := cfg.String("history", "")            // ""

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Int converts from int64 and from float64 when there is no fractional
part, which covers both YAML and JSON number decoding.

All methods return the default value if:
  - The key is missing
  - The value cannot be converted to the requested type
  - The conversion would lose precision (e.g., float to int with fraction)

# File Loading

Load configuration from YAML or JSON files:

	cfg, err := config.FromFile("streamflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	// Or load from bytes
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation. However, if the original map is modified
externally, behavior is undefined.
*/
package config

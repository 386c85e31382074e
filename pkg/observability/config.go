// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires OpenTelemetry tracing and Prometheus-backed
// metrics into the engine, tool manager, and HTTP adapter. Both halves are
// disabled by default; instrumentation call sites never branch on whether
// they're enabled because a disabled Config still yields a working no-op
// tracer/recorder pair.
package observability

import "fmt"

// DefaultServiceName names the resource attached to every exported span
// and the default Prometheus namespace.
const DefaultServiceName = "agentrun"

// DefaultMetricsPath is the HTTP path the metrics handler is conventionally
// mounted under.
const DefaultMetricsPath = "/metrics"

// Config configures the optional tracing and metrics integrations.
type Config struct {
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing,omitempty"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics,omitempty"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
	// Exporter selects the span exporter: "otlp" (default, OTLP/gRPC) or
	// "stdout" (pretty-printed spans to stdout, for local runs).
	Exporter     string  `mapstructure:"exporter" yaml:"exporter,omitempty"`
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Insecure     bool    `mapstructure:"insecure" yaml:"insecure,omitempty"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate,omitempty"`
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Namespace string `mapstructure:"namespace" yaml:"namespace,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlp"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Tracing.SamplingRate <= 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultServiceName
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = DefaultMetricsPath
	}
}

// Validate checks cross-field invariants not expressible as defaults.
func (c *Config) Validate() error {
	switch c.Tracing.Exporter {
	case "", "otlp", "stdout":
	default:
		return fmt.Errorf("observability: unknown tracing exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("observability: tracing exporter otlp requires an endpoint")
	}
	return nil
}

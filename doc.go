// Package ferry provides a file-oriented Extract & Load (EL) toolkit built
// around pooled records, pluggable row formats, and production-grade
// connector infrastructure.
//
// Ferry moves rows between files in CSV, JSONL, and Avro OCF formats through
// a streaming pipeline, and ships repository tooling for hook-pipeline
// configuration linting and changelog fragment management.
//
// # Architecture
//
// Ferry is organized around three ideas:
//
// 1. Pooled Records: All data flows as pool.Record values drawn from global
// object pools, keeping per-record allocations low on large files.
//
// 2. Unified Configuration: Every connector is configured through a single
// config.BaseConfig with performance, timeout, reliability, and connection
// sections, loaded from YAML with ${VAR_NAME} environment substitution.
//
// 3. Production-First Connectors: The base connector wires circuit breakers,
// rate limiting, health monitoring, retry policies, and Prometheus metrics
// into every source and destination.
//
// # Quick Start
//
// Create a CSV to JSONL pipeline:
//
//	import (
//	    "context"
//	    "github.com/vortexdata/ferry/internal/pipeline"
//	    "github.com/vortexdata/ferry/pkg/config"
//	    "github.com/vortexdata/ferry/pkg/connector/registry"
//	)
//
//	srcCfg := config.NewBaseConfig("file", "source")
//	srcCfg.Connection.Properties["source_path"] = "/data/in"
//	srcCfg.Connection.Properties["format"] = "csv"
//	source, _ := registry.CreateSource("file", srcCfg)
//
//	dstCfg := config.NewBaseConfig("file", "destination")
//	dstCfg.Connection.Properties["path"] = "/data/out/rows.jsonl"
//	dstCfg.Connection.Properties["format"] = "jsonl"
//	dest, _ := registry.CreateDestination("file", dstCfg)
//
//	p := pipeline.New(source, dest, pipeline.DefaultConfig())
//	err := p.Run(context.Background())
//
// # Key Packages
//
//	pkg/connector    - Connector framework for sources and destinations
//	pkg/formats      - Row format codecs (CSV, JSONL, Avro OCF)
//	pkg/pool         - Object pooling for records and batches
//	pkg/config       - Unified configuration management
//	pkg/hooks        - Hook-pipeline configuration validation
//	pkg/changelog    - Changelog fragment collection and rendering
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics collection
//
// # CLI
//
// The ferry binary drives all of the above:
//
//	ferry run -s source.yaml -d destination.yaml
//	ferry list
//	ferry hooks check .hooks.yaml
//	ferry changelog check changelog.d
//	ferry changelog render changelog.d --version 1.4.0 --out CHANGELOG.md
//
// Environment variables are supported in config files with ${VAR_NAME}
// syntax, and a .env file is loaded at startup when present.
package ferry

package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON Schema every config file must satisfy
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "telegram": {
      "type": "object",
      "properties": {
        "bot_token": { "type": "string" },
        "mode": { "type": "string", "enum": ["polling", "webhook"] },
        "poll_timeout": { "type": "integer", "minimum": 0 },
        "max_requests_per_second": { "type": "number", "minimum": 0 },
        "dedupe_ttl_seconds": { "type": "integer", "minimum": 0 },
        "debug": { "type": "boolean" }
      }
    },
    "webhook": {
      "type": "object",
      "properties": {
        "host": { "type": "string" },
        "port": { "type": "integer", "minimum": 1, "maximum": 65535 },
        "public_url": { "type": "string" },
        "path": { "type": "string", "pattern": "^/" },
        "secret_token": { "type": "string", "pattern": "^[A-Za-z0-9_-]{0,256}$" },
        "max_body_bytes": { "type": "integer", "minimum": 1 },
        "shutdown_timeout": { "type": "integer", "minimum": 0 }
      }
    },
    "topics": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/definitions/topic" }
    },
    "default_topic": { "$ref": "#/definitions/topic" },
    "dispatch": {
      "type": "object",
      "properties": {
        "task_timeout_seconds": { "type": "integer", "minimum": 1 },
        "max_concurrency": { "type": "integer", "minimum": 0 }
      }
    },
    "messages": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": { "type": "string", "enum": ["debug", "info", "warn", "error"] },
        "file": { "type": "string" },
        "console": { "type": "boolean" },
        "pretty": { "type": "boolean" },
        "max_size": { "type": "integer", "minimum": 0 },
        "max_age": { "type": "integer", "minimum": 0 },
        "compress": { "type": "boolean" },
        "redaction": { "type": "boolean" }
      }
    },
    "maintenance": {
      "type": "object",
      "properties": {
        "schedule": { "type": "string", "minLength": 1 },
        "lane_idle_minutes": { "type": "integer", "minimum": 0 }
      }
    },
    "data_dir": { "type": "string" }
  },
  "definitions": {
    "topic": {
      "type": "object",
      "required": ["thread_id"],
      "properties": {
        "name": { "type": "string" },
        "thread_id": { "type": "integer", "minimum": 1 }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// ValidateSchema checks raw config JSON against Schema
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("config does not match schema: %s", strings.Join(msgs, "; "))
	}

	return nil
}

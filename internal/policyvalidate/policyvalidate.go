// Package policyvalidate validates a RoutingPolicy's dynamic JSON blobs
// (rules, conditions_json) against a closed schema per strategy, so
// downstream code can read fields by literal key name without
// re-checking their presence or type. Unknown keys are rejected.
package policyvalidate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ShabariRepo/bonito-sub002/internal/routing"
)

// rulesSchemas holds one compiled schema per strategy for RoutingPolicy.Rules.
// All strategies share the same Rules shape (internal/routing.Rules), so one
// schema covers every strategy; a per-strategy map still gives each strategy
// room to diverge later without touching call sites.
var rulesSchemas = map[routing.Strategy]*jsonschema.Schema{}

const rulesSchemaDoc = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"max_cost_per_request": {"type": "number", "minimum": 0},
		"max_tokens": {"type": "integer", "minimum": 0},
		"allowed_capabilities": {"type": "array", "items": {"type": "string"}},
		"region_preference": {"type": "string"}
	}
}`

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.json", bytes.NewReader([]byte(rulesSchemaDoc))); err != nil {
		panic(fmt.Sprintf("policyvalidate: invalid built-in schema: %v", err))
	}
	schema, err := compiler.Compile("rules.json")
	if err != nil {
		panic(fmt.Sprintf("policyvalidate: compiling built-in schema: %v", err))
	}
	for _, s := range []routing.Strategy{
		routing.StrategyCostOptimized,
		routing.StrategyLatencyOptimized,
		routing.StrategyBalanced,
		routing.StrategyFailover,
		routing.StrategyABTest,
	} {
		rulesSchemas[s] = schema
	}
}

// ValidateRules checks a RoutingPolicy.Rules JSON string against the closed
// schema for strategy. An empty string is treated as "no rules" and always
// passes.
func ValidateRules(strategy routing.Strategy, rulesJSON string) error {
	if rulesJSON == "" {
		return nil
	}
	schema, ok := rulesSchemas[strategy]
	if !ok {
		return fmt.Errorf("unknown routing strategy: %s", strategy)
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(rulesJSON), &doc); err != nil {
		return fmt.Errorf("rules is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("rules failed schema validation: %w", err)
	}
	return nil
}

const conditionsSchemaDoc = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"items": {
		"type": "object",
		"additionalProperties": false,
		"required": ["field", "operator", "value", "target"],
		"properties": {
			"field": {"type": "string"},
			"operator": {"type": "string", "enum": ["eq", "neq", "gt", "lt", "gte", "lte", "contains"]},
			"value": {},
			"target": {"type": "string"}
		}
	}
}`

var conditionsSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("conditions.json", bytes.NewReader([]byte(conditionsSchemaDoc))); err != nil {
		panic(fmt.Sprintf("policyvalidate: invalid built-in conditions schema: %v", err))
	}
	schema, err := compiler.Compile("conditions.json")
	if err != nil {
		panic(fmt.Sprintf("policyvalidate: compiling built-in conditions schema: %v", err))
	}
	conditionsSchema = schema
}

// ValidateConditions checks a Config.Strategy.Conditions JSON array
// (conditions_json) against its closed schema.
func ValidateConditions(conditionsJSON string) error {
	if conditionsJSON == "" {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(conditionsJSON), &doc); err != nil {
		return fmt.Errorf("conditions_json is not valid JSON: %w", err)
	}
	if err := conditionsSchema.Validate(doc); err != nil {
		return fmt.Errorf("conditions_json failed schema validation: %w", err)
	}
	return nil
}

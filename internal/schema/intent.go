package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed intent_schemas.json
var intentSchemasJSON string

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// operations lists every parameter schema embedded in intent_schemas.json.
var operations = []string{
	"swap",
	"stake",
	"unstake",
	"claim_rewards",
	"balances",
	"pnl",
	"positions",
	"market_data",
	"news",
	"token_analysis",
	"protocol_analysis",
	"decode_transaction",
	"analyze_gas",
	"risk_assessment",
	"performance_report",
}

func compile() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("intent_schemas.json", strings.NewReader(intentSchemasJSON)); err != nil {
		compileErr = fmt.Errorf("add schema resource: %w", err)
		return
	}
	out := make(map[string]*jsonschema.Schema, len(operations))
	for _, op := range operations {
		schema, err := compiler.Compile("intent_schemas.json#/$defs/" + op)
		if err != nil {
			compileErr = fmt.Errorf("compile %s schema: %w", op, err)
			return
		}
		out[op] = schema
	}
	compiled = out
}

// ForOperation returns the compiled parameter schema for an operation.
func ForOperation(op string) (*jsonschema.Schema, error) {
	compileOnce.Do(compile)
	if compileErr != nil {
		return nil, compileErr
	}
	schema, ok := compiled[op]
	if !ok {
		return nil, fmt.Errorf("no parameter schema for operation %q", op)
	}
	return schema, nil
}

// ValidateParams validates an intent parameter map against the schema for the
// given operation. The map is round-tripped through JSON first so native Go
// numbers validate the same way wire payloads do.
func ValidateParams(op string, params map[string]interface{}) error {
	schema, err := ForOperation(op)
	if err != nil {
		return err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("parameters do not match %s schema: %w", op, err)
	}
	return nil
}

// Operations returns the known operation names, sorted.
func Operations() []string {
	out := append([]string(nil), operations...)
	sort.Strings(out)
	return out
}

// Raw returns the embedded schema document.
func Raw() string {
	return intentSchemasJSON
}

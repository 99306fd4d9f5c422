package main

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"creaturecore/internal/host"
	"creaturecore/internal/infra/stake"
	"creaturecore/pkg/domain"
)

//go:embed scenario.schema.json
var scenarioSchemaJSON []byte

const scenarioSchemaURL = "https://creaturecore.local/schema/scenario.schema.json"

var scenarioSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(scenarioSchemaURL, bytes.NewReader(scenarioSchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(scenarioSchemaURL)
})

// scenario is a YAML script of blocks. Genesis deposits top up the ledger
// before the first block.
type scenario struct {
	Genesis map[string]uint64 `yaml:"genesis"`
	Blocks  []scenarioBlock   `yaml:"blocks"`
}

type scenarioBlock struct {
	Calls []host.Call `yaml:"calls"`
}

func loadScenario(path string) (scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	if err := validateScenario(raw); err != nil {
		return scenario{}, fmt.Errorf("scenario %s: %w", path, err)
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return scenario{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	return sc, nil
}

// validateScenario checks the document against the embedded schema. YAML is
// converted to its JSON form first so numbers and maps take JSON types.
func validateScenario(raw []byte) error {
	schema, err := scenarioSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	var generic any
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return err
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("invalid: %w", err)
	}
	return nil
}

func (sc scenario) fund(ledger *stake.Ledger) error {
	accounts := make([]string, 0, len(sc.Genesis))
	for account := range sc.Genesis {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		if err := ledger.Deposit(domain.AccountID(account), domain.Balance(sc.Genesis[account])); err != nil {
			return fmt.Errorf("deposit %s: %w", account, err)
		}
	}
	return nil
}

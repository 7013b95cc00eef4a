package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vaultguard/internal/ir"
)

// Scenario is a scripted sequence of instructions with expected outcomes.
type Scenario struct {
	Name        string         `yaml:"name" validate:"required,alias"`
	Description string         `yaml:"description" validate:"required"`
	Config      ScenarioConfig `yaml:"config"`

	// Keys lists the identity aliases the scenario uses.
	Keys []string `yaml:"keys" validate:"required,min=1,unique,dive,alias"`

	Steps      []Step      `yaml:"steps" validate:"required,min=1,dive"`
	Assertions []Assertion `yaml:"assertions" validate:"dive"`
}

// ScenarioConfig overrides processor configuration for one scenario.
type ScenarioConfig struct {
	Namespace string `yaml:"namespace"`

	// Authority is a key alias; empty leaves privileged ops disabled.
	Authority              string `yaml:"authority" validate:"omitempty,alias"`
	AllowThirdPartyDeposit bool   `yaml:"allow_third_party_deposit"`
	MaxBufferCapacity      *int   `yaml:"max_buffer_capacity" validate:"omitempty,gte=0"`
}

// Step submits one instruction, or halts the processor.
type Step struct {
	Op        string         `yaml:"op" validate:"required,vaultop"`
	Vault     string         `yaml:"vault" validate:"omitempty,ref"`
	Signer    string         `yaml:"signer" validate:"omitempty,alias"`
	SignedBy  []string       `yaml:"signed_by" validate:"omitempty,dive,alias"`
	Companion string         `yaml:"companion" validate:"omitempty,ref"`
	Payload   map[string]any `yaml:"payload"`
	Expect    Expect         `yaml:"expect"`
}

// Expect is a step's expected outcome.
type Expect struct {
	Status string  `yaml:"status" validate:"required,oneof=committed rejected halted"`
	Kind   string  `yaml:"kind" validate:"required_if=Status rejected"`
	Value  *uint64 `yaml:"value"`
}

// Assertion checks final state after all steps ran.
type Assertion struct {
	// Type is one of record, log_count, replay.
	Type string `yaml:"type" validate:"required,oneof=record log_count replay"`

	// record
	Record string         `yaml:"record" validate:"omitempty,ref"`
	Expect map[string]any `yaml:"expect" validate:"required_if=Type record"`

	// log_count
	Status string `yaml:"status" validate:"omitempty,oneof=committed rejected"`
	Kind   string `yaml:"kind"`
	Count  *int   `yaml:"count" validate:"required_if=Type log_count"`
}

// Assertion types.
const (
	AssertRecord   = "record"
	AssertLogCount = "log_count"
	AssertReplay   = "replay"
)

var (
	aliasPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	scenarioVal  *validator.Validate
)

func init() {
	scenarioVal = validator.New()
	_ = scenarioVal.RegisterValidation("alias", func(fl validator.FieldLevel) bool {
		return aliasPattern.MatchString(fl.Field().String())
	})
	_ = scenarioVal.RegisterValidation("ref", func(fl validator.FieldLevel) bool {
		_, alias, err := splitRef(fl.Field().String())
		return err == nil && aliasPattern.MatchString(alias)
	})
	_ = scenarioVal.RegisterValidation("vaultop", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == opHalt {
			return true
		}
		_, err := ir.ParseOp(s)
		return err == nil
	})
}

// LoadScenario reads, strictly decodes and validates a scenario file.
// Unknown fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks field rules, then that every reference names a declared
// key and that nothing follows a halt except halted expectations.
func (s *Scenario) Validate() error {
	if err := scenarioVal.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}

	keys := make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		keys[k] = true
	}
	check := func(where, ref string) error {
		if ref == "" {
			return nil
		}
		_, alias, _ := splitRef(ref)
		if !keys[alias] {
			return fmt.Errorf("%s: %q is not a declared key", where, alias)
		}
		return nil
	}

	if err := check("config.authority", s.Config.Authority); err != nil {
		return err
	}

	halted := false
	for i, step := range s.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		for _, ref := range []string{step.Vault, step.Signer, step.Companion} {
			if err := check(where, ref); err != nil {
				return err
			}
		}
		for _, alias := range step.SignedBy {
			if err := check(where+".signed_by", alias); err != nil {
				return err
			}
		}
		if step.Op != opHalt && step.Vault == "" {
			return fmt.Errorf("%s: vault is required", where)
		}
		if halted && step.Expect.Status != StatusHalted {
			return fmt.Errorf("%s: steps after halt must expect status halted", where)
		}
		if step.Op == opHalt {
			halted = true
		}
	}

	for i, a := range s.Assertions {
		if a.Type == AssertRecord && a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required", i)
		}
		if err := check(fmt.Sprintf("assertions[%d]", i), a.Record); err != nil {
			return err
		}
	}
	return nil
}

// Reference kinds.
const (
	refKey     = "key"
	refVault   = "vault"
	refHolding = "holding"
)

// splitRef parses "alias", "key:alias", "vault:alias" or "holding:alias".
// A bare alias has an empty kind; the caller picks the default.
func splitRef(ref string) (kind, alias string, err error) {
	kind, alias, found := strings.Cut(ref, ":")
	if !found {
		return "", ref, nil
	}
	switch kind {
	case refKey, refVault, refHolding:
		return kind, alias, nil
	default:
		return "", "", fmt.Errorf("unknown reference kind %q", kind)
	}
}

// Discover returns the scenario files (*.yaml, *.yml) under dir, sorted.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover scenarios: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

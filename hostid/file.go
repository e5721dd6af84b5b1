package hostid

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-trampoline/errors"
)

// validate caches struct metadata across calls.
var validate = validator.New()

// RuleFile is the on-disk form of a denylist.
//
//	replace_defaults: false
//	rules:
//	  - name: old-android-webview
//	    user_agent: "Android 9; .*wv"
type RuleFile struct {
	Rules           []Spec `yaml:"rules" json:"rules" validate:"dive"`
	ReplaceDefaults bool   `yaml:"replace_defaults" json:"replace_defaults,omitempty" jsonschema:"description=Drop the built-in rules instead of extending them"`
}

// ParseRules decodes and validates a YAML rule file.
func ParseRules(data []byte) (*RuleFile, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Config("parse rules", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, errors.Config("validate rules", err)
	}
	return &f, nil
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("read rules", err)
	}
	return ParseRules(data)
}

// Denylist builds the effective denylist: the defaults extended by the
// file's rules, or only the file's rules when ReplaceDefaults is set.
func (f *RuleFile) Denylist() (*Denylist, error) {
	var base *Denylist
	if !f.ReplaceDefaults {
		base = DefaultDenylist()
	}
	rules, err := CompileSpecs(f.Rules)
	if err != nil {
		return nil, err
	}
	return base.With(rules...), nil
}

// CompileSpecs compiles declarative rules in order.
func CompileSpecs(specs []Spec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		r, err := s.Compile()
		if err != nil {
			return nil, errors.Config(fmt.Sprintf("rule %q", s.Name), err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Schema returns the JSON schema of the rule file format.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	return json.MarshalIndent(reflector.Reflect(&RuleFile{}), "", "  ")
}

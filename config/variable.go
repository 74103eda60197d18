package config

import (
	"fmt"
	"strings"
)

type Variable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
	Secret  bool   `hcl:"secret,optional"`
}

func (v *Variable) Validate() error {
	if v.Secret && v.Default != "" {
		return fmt.Errorf("Invalid secret; Secret variable '%s' cannot have a default value set in config", v.Name)
	}
	return nil
}

// EnvName is the environment variable consulted when the vars file has no value,
// e.g. "openai_key" -> "CHORUS_VAR_OPENAI_KEY".
func (v *Variable) EnvName() string {
	return "CHORUS_VAR_" + strings.ToUpper(v.Name)
}

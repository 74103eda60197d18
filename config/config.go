package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Models        []Model              `hcl:"model,block"`
	Participants  []Participant        `hcl:"participant,block"`
	Variables     []Variable           `hcl:"variable,block"`
	Collaboration *CollaborationConfig `hcl:"collaboration,block"`
	Storage       *StorageConfig       `hcl:"storage,block"`
	Server        *ServerConfig        `hcl:"server,block"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	if len(c.Participants) == 0 {
		return fmt.Errorf("at least one participant block is required")
	}

	seen := make(map[string]bool)
	for i := range c.Participants {
		p := &c.Participants[i]
		if seen[p.Name] {
			return fmt.Errorf("participant '%s': declared more than once", p.Name)
		}
		seen[p.Name] = true
		if err := p.Validate(c.Models); err != nil {
			return fmt.Errorf("participant '%s': %w", p.Name, err)
		}
	}

	if err := c.Collaboration.Validate(c.Participants); err != nil {
		return fmt.Errorf("collaboration: %w", err)
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}

	if c.Server != nil {
		if err := c.Server.Validate(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	return nil
}

// FindParticipant returns the participant with the given name, or nil
func (c *Config) FindParticipant(name string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].Name == name {
			return &c.Participants[i]
		}
	}
	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables     []*hcl.Block
	Models        []*hcl.Block
	Participants  []*hcl.Block
	Collaboration []*hcl.Block
	Storage       []*hcl.Block
	Server        []*hcl.Block
}

// loadFromFiles implements staged loading: variables → models → participants → settings
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, diags := hclFile.Body.Content(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "participant", LabelNames: []string{"name"}},
				{Type: "collaboration"},
				{Type: "storage"},
				{Type: "server"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("content %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "participant":
				pb.Participants = append(pb.Participants, block)
			case "collaboration":
				pb.Collaboration = append(pb.Collaboration, block)
			case "storage":
				pb.Storage = append(pb.Storage, block)
			case "server":
				pb.Server = append(pb.Server, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: Load variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}

	varsCtx, resolvedVars := buildVarsContext(allVars)

	// Stage 2: Load models (with vars context)
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode model %s: %w", m.Name, diags)
			}
			allModels = append(allModels, m)
		}
	}

	modelsCtx := buildModelsContext(varsCtx, allModels)

	// Stage 3: Load participants (with vars + models context)
	var allParticipants []Participant
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Participants {
			var p Participant
			p.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &p)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode participant %s: %w", p.Name, diags)
			}
			allParticipants = append(allParticipants, p)
		}
	}

	participantsCtx := buildParticipantsContext(modelsCtx, allParticipants)

	// Stage 4: Singleton settings blocks (with the full context)
	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		Participants: allParticipants,
		ResolvedVars: resolvedVars,
	}

	for _, pb := range allParsedBlocks {
		for _, block := range pb.Collaboration {
			if cfg.Collaboration != nil {
				return nil, fmt.Errorf("only one collaboration block is allowed")
			}
			var cc CollaborationConfig
			if diags := gohcl.DecodeBody(block.Body, participantsCtx, &cc); diags.HasErrors() {
				return nil, fmt.Errorf("decode collaboration: %w", diags)
			}
			cfg.Collaboration = &cc
		}
		for _, block := range pb.Storage {
			if cfg.Storage != nil {
				return nil, fmt.Errorf("only one storage block is allowed")
			}
			var sc StorageConfig
			if diags := gohcl.DecodeBody(block.Body, varsCtx, &sc); diags.HasErrors() {
				return nil, fmt.Errorf("decode storage: %w", diags)
			}
			cfg.Storage = &sc
		}
		for _, block := range pb.Server {
			if cfg.Server != nil {
				return nil, fmt.Errorf("only one server block is allowed")
			}
			var sc ServerConfig
			if diags := gohcl.DecodeBody(block.Body, varsCtx, &sc); diags.HasErrors() {
				return nil, fmt.Errorf("decode server: %w", diags)
			}
			cfg.Server = &sc
		}
	}

	if cfg.Collaboration == nil {
		cfg.Collaboration = &CollaborationConfig{}
	}
	cfg.Collaboration.Defaults(cfg.Participants)
	if cfg.Storage != nil {
		cfg.Storage.Defaults()
	}
	if cfg.Server != nil {
		cfg.Server.Defaults()
	}

	return cfg, nil
}

// buildVarsContext creates context with just vars
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value) {
	varsMap := make(map[string]cty.Value)
	fileVars, _ := LoadVarsFromFile()
	for _, v := range vars {
		if val, ok := fileVars[v.Name]; ok {
			varsMap[v.Name] = cty.StringVal(val)
		} else if envVal, ok := os.LookupEnv(v.EnvName()); ok {
			varsMap[v.Name] = cty.StringVal(envVal)
		} else if v.Default != "" {
			varsMap[v.Name] = cty.StringVal(v.Default)
		} else {
			varsMap[v.Name] = cty.StringVal("")
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap
}

// buildModelsContext adds models to existing context.
// models.{model_name}.{model_key} evaluates to "{model_name}.{model_key}".
func buildModelsContext(ctx *hcl.EvalContext, models []Model) *hcl.EvalContext {
	modelsMap := make(map[string]cty.Value)
	for _, m := range models {
		providerModels := make(map[string]cty.Value)
		for _, modelKey := range m.AllowedModels {
			providerModels[modelKey] = cty.StringVal(m.Name + "." + modelKey)
		}
		modelsMap[m.Name] = cty.ObjectVal(providerModels)
	}

	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["models"] = cty.ObjectVal(modelsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}

// buildParticipantsContext adds participants namespace to existing context
// Creates participants.{name} references
func buildParticipantsContext(ctx *hcl.EvalContext, participants []Participant) *hcl.EvalContext {
	participantsMap := make(map[string]cty.Value)
	for _, p := range participants {
		participantsMap[p.Name] = cty.StringVal(p.Name)
	}

	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars["participants"] = cty.ObjectVal(participantsMap)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}

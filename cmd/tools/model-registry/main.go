package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"ai-orchestrator/pkg/registry"
)

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	var path string
	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd} {
		fs.StringVar(&path, "path", "configs/model-registry.json", "Path to registry file")
	}

	idAdd := addCmd.String("id", "", "Model ID (e.g., gpt-4o-mini)")
	tier := addCmd.String("tier", string(registry.TierMini), "Tier (mini, escalation, embedding)")
	maxIn := addCmd.Int("maxInput", 128000, "Max input tokens")
	maxOut := addCmd.Int("maxOutput", 4096, "Max output tokens")
	inPrice := addCmd.Float64("input", 0, "Input price, USD per 1K tokens")
	cachedPrice := addCmd.Float64("cachedInput", 0, "Cached input price, USD per 1K tokens")
	outPrice := addCmd.Float64("output", 0, "Output price, USD per 1K tokens")
	tools := addCmd.Bool("tools", true, "Supports tool calls")
	structured := addCmd.Bool("structured", true, "Supports strict structured output")
	promptCache := addCmd.Bool("promptCache", false, "Supports prompt caching")

	idUpdate := updateCmd.String("id", "", "Model ID to update")
	field := updateCmd.String("field", "", "Field to update (tier, maxInput, maxOutput, input, cachedInput, output)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		if *idAdd == "" {
			fmt.Println("Error: id is required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		spec := registry.ModelSpec{
			ID:                       *idAdd,
			Tier:                     registry.Tier(*tier),
			MaxInputTokens:           *maxIn,
			MaxOutputTokens:          *maxOut,
			SupportsTools:            *tools,
			SupportsStructuredOutput: *structured,
			SupportsPromptCache:      *promptCache,
			InputPer1K:               *inPrice,
			CachedInputPer1K:         *cachedPrice,
			OutputPer1K:              *outPrice,
		}
		if err := addModel(path, spec); err != nil {
			fmt.Printf("Error adding model: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added model: %s\n", *idAdd)

	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateModel(path, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating model: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated model %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		n, err := validateRegistry(path)
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d models.\n", n)

	default:
		help()
	}
}

// addModel appends spec, seeding a missing file from the built-in table.
func addModel(path string, spec registry.ModelSpec) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = registry.DefaultRegistry()
	}

	if _, exists := reg.Lookup(spec.ID); exists {
		return fmt.Errorf("model with ID %s already exists", spec.ID)
	}

	reg.Models = append(reg.Models, spec)
	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return reg.Save(path)
}

func updateModel(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Models {
		if reg.Models[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("model with ID %s not found", id)
	}
	m := &reg.Models[idx]

	switch field {
	case "tier":
		m.Tier = registry.Tier(value)
	case "maxInput", "maxOutput":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", field, err)
		}
		if field == "maxInput" {
			m.MaxInputTokens = n
		} else {
			m.MaxOutputTokens = n
		}
	case "input", "cachedInput", "output":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", field, err)
		}
		switch field {
		case "input":
			m.InputPer1K = f
		case "cachedInput":
			m.CachedInputPer1K = f
		default:
			m.OutputPer1K = f
		}
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return reg.Save(path)
}

func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	return len(reg.Models), nil
}

func help() {
	fmt.Println(`
Usage: model-registry <command> [flags]

Commands:
  add      Add a model to the registry
  update   Update one field of a model
  validate Validate the registry file
  help     Show this help message

Examples:
  model-registry add -id gpt-4.1-nano -tier mini -maxOutput 32768 -input 0.0001 -cachedInput 0.000025 -output 0.0004
  model-registry update -id gpt-4o -field output -value 0.01
  model-registry validate -path configs/model-registry.json`)
}

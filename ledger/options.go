package ledger

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed options_schema.cue
var optionsSchemaCUE string

// Backend names accepted by Options.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options configures one ledger instance. Every field must be populated
// before Open; start from DefaultOptions (or LoadOptions, which applies
// the defaults) rather than a zero Options. DataDir has no default and is
// always required.
type Options struct {
	// DataDir is the storage root. Required.
	DataDir string `yaml:"data_dir"`

	// Backend selects the durability backend: "file" (JSONL log + blob
	// files) or "sqlite" (single database file). Default: "file".
	Backend string `yaml:"backend"`

	// LockFile guards DataDir against a second process. Default: true.
	LockFile bool `yaml:"lock_file"`

	// IdentityFile names the identity document, joined to DataDir unless
	// absolute. Default: "identity.json".
	IdentityFile string `yaml:"identity_file"`
}

// DefaultOptions returns the defaults for everything but DataDir.
func DefaultOptions() Options {
	return Options{
		Backend:      BackendFile,
		LockFile:     true,
		IdentityFile: "identity.json",
	}
}

// Validate eagerly checks the options, failing fast with a descriptive
// error instead of proceeding with undefined results.
func (o Options) Validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("ledger: data_dir must not be empty")
	}
	switch o.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("ledger: unknown backend %q (want %q or %q)",
			o.Backend, BackendFile, BackendSQLite)
	}
	if o.IdentityFile == "" {
		return fmt.Errorf("ledger: identity_file must not be empty")
	}
	return nil
}

// LoadOptions reads a YAML options file and validates it against the
// embedded CUE schema before decoding. Schema violations - wrong types,
// unknown fields, bad backend names - surface as errors here rather than
// as undefined behavior later.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("ledger: read options: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Options{}, fmt.Errorf("ledger: parse options: %w", err)
	}

	if err := validateAgainstSchema(raw); err != nil {
		return Options{}, err
	}

	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("ledger: decode options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// validateAgainstSchema unifies the parsed document with the #Options
// definition. The definition is closed, so unknown fields are rejected
// along with type and enum violations.
func validateAgainstSchema(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(optionsSchemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("ledger: compile options schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Options"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("ledger: lookup options schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("ledger: encode options: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("ledger: invalid options: %w", err)
	}
	return nil
}

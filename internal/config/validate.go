package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaMu   sync.Mutex
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

// ValidationError reports the first configuration field the schema rejected.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid config: %s", e.Message)
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
}

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks c against the embedded schema and parses the authority.
func (c *Config) Validate() error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	// cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	unified := def.Unify(ctx.Encode(c))
	err = unified.Validate(cue.Concrete(true))
	schemaMu.Unlock()
	if err != nil {
		return toValidationError(err)
	}

	if _, err := c.Authority(); err != nil {
		return &ValidationError{Path: "privileged_authority", Message: err.Error()}
	}
	return nil
}

func toValidationError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	path := first.Path()
	if len(path) > 0 && path[0] == "#Config" {
		path = path[1:]
	}
	return &ValidationError{Path: strings.Join(path, "."), Message: fmt.Sprintf(format, args...)}
}

package grammar

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed grammars/*.yaml
var builtinFS embed.FS

// Builtin returns a registry preloaded with the grammars shipped with the
// runtime: sxl-universal, sxl-plan and sxl-sql.
func Builtin() (*Registry, error) {
	reg := NewRegistry()
	entries, err := fs.ReadDir(builtinFS, "grammars")
	if err != nil {
		return nil, fmt.Errorf("read builtin grammars: %w", err)
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(builtinFS, "grammars/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin grammar %s: %w", entry.Name(), err)
		}
		g, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin grammar %s: %w", entry.Name(), err)
		}
		if err := reg.Register(g); err != nil {
			return nil, fmt.Errorf("builtin grammar %s: %w", entry.Name(), err)
		}
	}
	return reg, nil
}

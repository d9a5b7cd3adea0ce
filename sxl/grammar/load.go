package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type (
	// grammarFile mirrors the on-disk YAML layout.
	grammarFile struct {
		MetaGrammarVersion string           `yaml:"meta_grammar_version"`
		DSL                dslInfoFile      `yaml:"dsl"`
		Symbols            symbolList       `yaml:"symbols"`
		Literals           literalsFile     `yaml:"literals"`
		Identifier         identifierFile   `yaml:"identifier"`
		ReservedSymbols    []string         `yaml:"reserved_symbols"`
		Embedding          embeddingFile    `yaml:"embedding"`
		Constraints        []constraintFile `yaml:"constraints"`
		LLMSpecs           llmSpecsFile     `yaml:"llm_specs"`
	}

	dslInfoFile struct {
		ID          string `yaml:"id"`
		Description string `yaml:"description"`
		Version     string `yaml:"version"`
	}

	symbolFile struct {
		Description string      `yaml:"description"`
		Kind        string      `yaml:"kind"`
		Params      []paramFile `yaml:"params"`
		Constraints []string    `yaml:"constraints"`
		Examples    []string    `yaml:"examples"`
	}

	paramFile struct {
		Name            string              `yaml:"name"`
		Description     string              `yaml:"description"`
		Type            string              `yaml:"type"`
		AllowedSymbols  []string            `yaml:"allowed_symbols"`
		Cardinality     string              `yaml:"cardinality"`
		Ordered         *bool               `yaml:"ordered"`
		IdentifierRules identifierRulesFile `yaml:"identifier_rules"`
	}

	identifierRulesFile struct {
		Pattern string `yaml:"pattern"`
	}

	literalsFile struct {
		String  regexRuleFile `yaml:"string"`
		Number  regexRuleFile `yaml:"number"`
		Boolean valueRuleFile `yaml:"boolean"`
		Null    valueRuleFile `yaml:"null"`
	}

	regexRuleFile struct {
		Regex string `yaml:"regex"`
	}

	valueRuleFile struct {
		Values []string `yaml:"values"`
	}

	identifierFile struct {
		Description string `yaml:"description"`
		Pattern     string `yaml:"pattern"`
	}

	embeddingFile struct {
		Enabled            bool        `yaml:"enabled"`
		Symbol             string      `yaml:"symbol"`
		AutoRegisterSymbol bool        `yaml:"auto_register_symbol"`
		Params             []paramFile `yaml:"params"`
	}

	constraintFile struct {
		Rule      string   `yaml:"rule"`
		Target    string   `yaml:"target"`
		Symbol    string   `yaml:"symbol"`
		DependsOn []string `yaml:"depends_on"`
	}

	llmSpecsFile struct {
		Defaults         string            `yaml:"defaults"`
		ProviderDefaults map[string]string `yaml:"provider_defaults"`
		Models           map[string]string `yaml:"models"`
		Profiles         map[string]string `yaml:"profiles"`
	}

	// namedSymbol pairs a symbol name with its definition, preserving the
	// authoring order of the YAML mapping.
	namedSymbol struct {
		name string
		def  symbolFile
	}

	symbolList []namedSymbol
)

// UnmarshalYAML decodes the symbols mapping while preserving key order,
// which plain map decoding would lose.
func (l *symbolList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("symbols: expected a mapping, got %s", value.Tag)
	}
	seen := make(map[string]struct{}, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if _, dup := seen[key.Value]; dup {
			return fmt.Errorf("symbols: duplicate symbol %q", key.Value)
		}
		seen[key.Value] = struct{}{}
		var def symbolFile
		if err := val.Decode(&def); err != nil {
			return fmt.Errorf("symbol %q: %w", key.Value, err)
		}
		*l = append(*l, namedSymbol{name: key.Value, def: def})
	}
	return nil
}

// Parse decodes and validates a grammar document.
func Parse(data []byte) (*Grammar, error) {
	var f grammarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse grammar: %w", err)
	}
	return f.build()
}

// Load reads and parses a grammar file.
func Load(path string) (*Grammar, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- grammar paths come from host configuration
	if err != nil {
		return nil, fmt.Errorf("read grammar: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load grammar %s: %w", path, err)
	}
	return g, nil
}

// LoadDir loads every .yaml and .yml file in dir and registers the grammars
// into reg. Files load in lexical order, so duplicate-id failures are
// deterministic. Subdirectories and other file types are skipped.
func LoadDir(dir string, reg *Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read grammar dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
		default:
			continue
		}
		g, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("load grammar %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// build validates the decoded document and assembles the Grammar.
func (f *grammarFile) build() (*Grammar, error) {
	if f.DSL.ID == "" {
		return nil, fmt.Errorf("grammar: missing dsl.id")
	}
	id := f.DSL.ID

	g := &Grammar{
		MetaGrammarVersion: f.MetaGrammarVersion,
		DSL: DSLInfo{
			ID:          f.DSL.ID,
			Description: f.DSL.Description,
			Version:     f.DSL.Version,
		},
		Identifier: IdentifierRule{
			Description: f.Identifier.Description,
			Pattern:     f.Identifier.Pattern,
		},
		Constraints: make([]Constraint, 0, len(f.Constraints)),
		LLMSpecs: LLMSpecs{
			Defaults:         f.LLMSpecs.Defaults,
			ProviderDefaults: f.LLMSpecs.ProviderDefaults,
			Models:           f.LLMSpecs.Models,
			Profiles:         f.LLMSpecs.Profiles,
		},
		symbols:  make(map[string]*SymbolDef, len(f.Symbols)),
		reserved: make(map[string]struct{}),
	}

	embedSymbol := f.Embedding.Symbol
	if embedSymbol == "" {
		embedSymbol = ReservedEmbed
	}
	embedParams, err := buildParams(id, embedSymbol, f.Embedding.Params)
	if err != nil {
		return nil, err
	}
	g.Embedding = Embedding{
		Enabled:            f.Embedding.Enabled,
		Symbol:             embedSymbol,
		AutoRegisterSymbol: f.Embedding.AutoRegisterSymbol,
		Params:             embedParams,
	}

	for _, ns := range f.Symbols {
		if ns.name == embedSymbol || ns.name == ReservedEmbed {
			return nil, fmt.Errorf("grammar %s: %q is reserved for embedding and must not be defined in symbols", id, ns.name)
		}
		params, err := buildParams(id, ns.name, ns.def.Params)
		if err != nil {
			return nil, err
		}
		def := &SymbolDef{
			Name:        ns.name,
			Description: ns.def.Description,
			Kind:        ns.def.Kind,
			Params:      params,
			Constraints: ns.def.Constraints,
			Examples:    ns.def.Examples,
		}
		g.Symbols = append(g.Symbols, def)
		g.symbols[ns.name] = def
	}

	if g.Literals.String, err = buildLiteralRule(id, "string", f.Literals.String.Regex); err != nil {
		return nil, err
	}
	if g.Literals.Number, err = buildLiteralRule(id, "number", f.Literals.Number.Regex); err != nil {
		return nil, err
	}
	g.Literals.Boolean = ValueRule{Values: f.Literals.Boolean.Values}
	if len(g.Literals.Boolean.Values) == 0 {
		g.Literals.Boolean.Values = []string{"true", "false"}
	}
	g.Literals.Null = ValueRule{Values: f.Literals.Null.Values}
	if len(g.Literals.Null.Values) == 0 {
		g.Literals.Null.Values = []string{"null"}
	}

	if f.Identifier.Pattern != "" {
		re, err := regexp.Compile(f.Identifier.Pattern)
		if err != nil {
			return nil, fmt.Errorf("grammar %s: invalid identifier pattern %q: %w", id, f.Identifier.Pattern, err)
		}
		g.Identifier.re = re
	}

	for _, c := range f.Constraints {
		switch c.Rule {
		case "must_have_root":
			if c.Symbol == "" {
				return nil, fmt.Errorf("grammar %s: must_have_root constraint requires a symbol", id)
			}
			if !g.Defines(c.Symbol) {
				return nil, fmt.Errorf("grammar %s: must_have_root names undefined symbol %q", id, c.Symbol)
			}
		default:
			return nil, fmt.Errorf("grammar %s: unknown constraint rule %q", id, c.Rule)
		}
		g.Constraints = append(g.Constraints, Constraint{
			Rule:      c.Rule,
			Target:    c.Target,
			Symbol:    c.Symbol,
			DependsOn: c.DependsOn,
		})
	}

	g.Reserved = append([]string{}, f.ReservedSymbols...)
	for _, name := range g.Reserved {
		g.reserved[name] = struct{}{}
	}
	// The embedding symbol is reserved whether or not the file lists it.
	if _, ok := g.reserved[embedSymbol]; !ok {
		g.Reserved = append(g.Reserved, embedSymbol)
		g.reserved[embedSymbol] = struct{}{}
	}
	g.reserved[ReservedEmbed] = struct{}{}

	return g, nil
}

func buildLiteralRule(id, kind, pattern string) (LiteralRule, error) {
	rule := LiteralRule{Regex: pattern}
	if pattern == "" {
		return rule, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return LiteralRule{}, fmt.Errorf("grammar %s: invalid %s literal pattern %q: %w", id, kind, pattern, err)
	}
	rule.re = re
	return rule, nil
}

func buildParams(id, symbol string, files []paramFile) ([]*ParamDef, error) {
	if len(files) == 0 {
		return nil, nil
	}
	params := make([]*ParamDef, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, pf := range files {
		if pf.Name == "" {
			return nil, fmt.Errorf("grammar %s: symbol %s: parameter without a name", id, symbol)
		}
		if _, dup := seen[pf.Name]; dup {
			return nil, fmt.Errorf("grammar %s: symbol %s: duplicate parameter %q", id, symbol, pf.Name)
		}
		seen[pf.Name] = struct{}{}

		kind, kinds, err := parseParamType(pf.Type)
		if err != nil {
			return nil, fmt.Errorf("grammar %s: symbol %s: parameter %s: %w", id, symbol, pf.Name, err)
		}
		card := Cardinality(pf.Cardinality)
		if card == "" {
			card = CardinalityRequired
		}
		if !card.Valid() {
			return nil, fmt.Errorf("grammar %s: symbol %s: parameter %s: unknown cardinality %q", id, symbol, pf.Name, pf.Cardinality)
		}

		p := &ParamDef{
			Name:              pf.Name,
			Description:       pf.Description,
			Type:              pf.Type,
			AllowedSymbols:    pf.AllowedSymbols,
			Cardinality:       card,
			Ordered:           pf.Ordered == nil || *pf.Ordered,
			IdentifierPattern: pf.IdentifierRules.Pattern,
			kind:              kind,
			kinds:             kinds,
		}
		if p.Type == "" {
			p.Type = "any"
		}
		if p.IdentifierPattern != "" {
			re, err := regexp.Compile(p.IdentifierPattern)
			if err != nil {
				return nil, fmt.Errorf("grammar %s: symbol %s: parameter %s: invalid identifier pattern %q: %w", id, symbol, pf.Name, p.IdentifierPattern, err)
			}
			p.pattern = re
		}
		if len(p.AllowedSymbols) > 0 {
			p.allowed = make(map[string]struct{}, len(p.AllowedSymbols))
			for _, name := range p.AllowedSymbols {
				p.allowed[name] = struct{}{}
			}
		}
		params = append(params, p)
	}
	return params, nil
}

// parseParamType classifies a parameter type expression.
func parseParamType(s string) (ParamKind, []string, error) {
	switch s {
	case "", "any":
		return ParamAny, nil, nil
	case "node":
		return ParamNode, nil, nil
	case "identifier":
		return ParamIdentifier, nil, nil
	case "dsl-id":
		return ParamDSLID, nil, nil
	case "embedded":
		return ParamEmbedded, nil, nil
	case "literal":
		return ParamLiteral, []string{"string", "number", "boolean", "null"}, nil
	}
	if strings.HasPrefix(s, "literal(") && strings.HasSuffix(s, ")") {
		raw := strings.Split(s[len("literal("):len(s)-1], "|")
		kinds := make([]string, 0, len(raw))
		for _, k := range raw {
			k = strings.TrimSpace(k)
			switch k {
			case "string", "number", "boolean", "null":
				kinds = append(kinds, k)
			default:
				return 0, nil, fmt.Errorf("unknown literal kind %q", k)
			}
		}
		if len(kinds) == 0 {
			return 0, nil, fmt.Errorf("empty literal kind list in %q", s)
		}
		return ParamLiteral, kinds, nil
	}
	return 0, nil, fmt.Errorf("unknown parameter type %q", s)
}

package parse

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageConfig maps one language's tree-sitter node type names onto the
// closed set of symbol kinds Canopy captures.
type languageConfig struct {
	name       string
	sitterLang *sitter.Language

	functionTypes []string
	methodTypes   []string
	classTypes    []string
	// structTypes covers Go's struct/interface/alias type_declaration, and
	// TypeScript's interface/type-alias declarations — constructs with no
	// real "class" semantics but still a named type worth a handle.
	structTypes []string
}

var languagesByExt = map[string]*languageConfig{}

func init() {
	goCfg := &languageConfig{
		name:          "go",
		sitterLang:    golang.GetLanguage(),
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_declaration"},
		structTypes:   []string{"type_declaration"},
	}
	tsCfg := &languageConfig{
		name:          "typescript",
		sitterLang:    typescript.GetLanguage(),
		functionTypes: []string{"function_declaration"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
		structTypes:   []string{"interface_declaration", "type_alias_declaration"},
	}
	tsxCfg := &languageConfig{
		name:          "tsx",
		sitterLang:    tsx.GetLanguage(),
		functionTypes: tsCfg.functionTypes,
		methodTypes:   tsCfg.methodTypes,
		classTypes:    tsCfg.classTypes,
		structTypes:   tsCfg.structTypes,
	}
	jsCfg := &languageConfig{
		name:          "javascript",
		sitterLang:    javascript.GetLanguage(),
		functionTypes: []string{"function_declaration", "function"},
		methodTypes:   []string{"method_definition"},
		classTypes:    []string{"class_declaration"},
	}
	pyCfg := &languageConfig{
		name:          "python",
		sitterLang:    python.GetLanguage(),
		functionTypes: []string{"function_definition"},
		classTypes:    []string{"class_definition"},
	}

	languagesByExt[".go"] = goCfg
	languagesByExt[".ts"] = tsCfg
	languagesByExt[".tsx"] = tsxCfg
	languagesByExt[".js"] = jsCfg
	languagesByExt[".mjs"] = jsCfg
	languagesByExt[".jsx"] = jsCfg
	languagesByExt[".py"] = pyCfg
}

func languageForExtension(ext string) (*languageConfig, bool) {
	cfg, ok := languagesByExt[ext]
	return cfg, ok
}

package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"

	"datanerd/internal/logging"
)

// Precheck parses generated code before it ships to an adapter, so plain
// syntax garbage burns its retry locally instead of costing a sandbox
// round trip. A precheck failure counts against the same retry budget as
// an execution failure.
type Precheck struct {
	language string

	// A tree-sitter parser is single-threaded; runs share one Precheck.
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewPrecheck builds a checker for the adapter's language. Only the
// languages an adapter can produce have grammars here.
func NewPrecheck(language string) (*Precheck, error) {
	parser := sitter.NewParser()
	lang := strings.ToLower(strings.TrimSpace(language))
	switch lang {
	case "python":
		parser.SetLanguage(python.GetLanguage())
	case "go":
		parser.SetLanguage(golang.GetLanguage())
	default:
		parser.Close()
		return nil, fmt.Errorf("no grammar for language %q", language)
	}
	return &Precheck{language: lang, parser: parser}, nil
}

// Language reports which grammar this checker parses with.
func (p *Precheck) Language() string { return p.language }

// Close releases the parser.
func (p *Precheck) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parser.Close()
}

// Check parses the code and reports the first few syntax error positions.
// A nil return means the grammar accepted the code, not that it will run.
func (p *Precheck) Check(ctx context.Context, code string) error {
	if p.language == "go" {
		code = wrapGoCode(code)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	defer tree.Close()

	var positions []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if len(positions) >= 3 {
			return
		}
		if n.Type() == "ERROR" {
			positions = append(positions, fmt.Sprintf("line %d", int(n.StartPoint().Row)+1))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	if len(positions) > 0 {
		logging.ExecutionDebug("Precheck rejected %s code: errors near %s", p.language, strings.Join(positions, ", "))
		return fmt.Errorf("%s syntax error near %s", p.language, strings.Join(positions, ", "))
	}
	return nil
}

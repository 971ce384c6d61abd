// Package template renders the params of component manifest units against
// the install parameters with text/template.
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"
	"text/template/parse"

	"github.com/gxo-labs/txinstall/internal/secrets"
	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	txsecrets "github.com/gxo-labs/txinstall/pkg/txinstall/v1/secrets"
)

// Renderer renders manifest templates.
type Renderer interface {
	Render(templateString string, data interface{}) (string, error)
	RenderParams(params map[string]interface{}, data interface{}) (map[string]interface{}, error)
	ExtractVariables(templateString string) ([]string, error)
}

// GoRenderer implements Renderer with text/template. Parsed templates are
// cached; a GoRenderer is safe for concurrent use.
type GoRenderer struct {
	secretsProvider txsecrets.Provider
	eventBus        events.Bus
	secretTracker   *secrets.SecretTracker
	templateCache   map[string]*template.Template
	mu              sync.Mutex
}

// NewGoRenderer creates a renderer. provider, bus and tracker may be nil;
// without a provider the secret function is not available.
func NewGoRenderer(provider txsecrets.Provider, bus events.Bus, tracker *secrets.SecretTracker) *GoRenderer {
	return &GoRenderer{
		secretsProvider: provider,
		eventBus:        bus,
		secretTracker:   tracker,
		templateCache:   make(map[string]*template.Template),
	}
}

// GetFuncMap returns the functions available to manifest templates.
func (r *GoRenderer) GetFuncMap() template.FuncMap {
	return GetFuncMap(r.secretsProvider, r.eventBus, r.secretTracker)
}

// Render executes templateString against data. A reference to a missing
// parameter is an error.
func (r *GoRenderer) Render(templateString string, data interface{}) (string, error) {
	t, err := r.getOrParseTemplate(templateString)
	if err != nil {
		return "", txerrors.NewValidationError(fmt.Sprintf("template parse error: %s", err.Error()), err)
	}

	var buf bytes.Buffer
	if execErr := t.Execute(&buf, data); execErr != nil {
		return "", txerrors.NewValidationError(fmt.Sprintf("template execution error: %s", execErr.Error()), execErr)
	}
	return buf.String(), nil
}

// RenderParams returns a copy of params in which every string containing a
// template action has been rendered. Nested maps and lists are walked.
func (r *GoRenderer) RenderParams(params map[string]interface{}, data interface{}) (map[string]interface{}, error) {
	if params == nil {
		return nil, nil
	}
	out, err := r.renderValue(params, data, "")
	if err != nil {
		return nil, err
	}
	return out.(map[string]interface{}), nil
}

func (r *GoRenderer) renderValue(v interface{}, data interface{}, path string) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "{{") {
			return val, nil
		}
		rendered, err := r.Render(val, data)
		if err != nil {
			return nil, fmt.Errorf("param '%s': %w", path, err)
		}
		return rendered, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			rendered, err := r.renderValue(item, data, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			rendered, err := r.renderValue(item, data, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// ExtractVariables lists the top-level data fields templateString refers to,
// in sorted order. Function names are not reported.
func (r *GoRenderer) ExtractVariables(templateString string) ([]string, error) {
	funcMap := r.GetFuncMap()
	t, err := template.New("extract").Funcs(funcMap).Parse(templateString)
	if err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	if t.Root != nil {
		collectVariables(t.Root, found, funcMap)
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *GoRenderer) getOrParseTemplate(templateString string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, exists := r.templateCache[templateString]; exists {
		return cached, nil
	}
	t, err := template.New("param").Option("missingkey=error").Funcs(r.GetFuncMap()).Parse(templateString)
	if err != nil {
		return nil, err
	}
	r.templateCache[templateString] = t
	return t, nil
}

func fieldName(node parse.Node, funcMap template.FuncMap) string {
	switch n := node.(type) {
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			return n.Ident[0]
		}
	case *parse.ChainNode:
		return fieldName(n.Node, funcMap)
	case *parse.IdentifierNode:
		if _, isFunc := funcMap[n.Ident]; !isFunc {
			return n.Ident
		}
	}
	return ""
}

func collectVariables(node parse.Node, vars map[string]struct{}, funcMap template.FuncMap) {
	if node == nil {
		return
	}
	if name := fieldName(node, funcMap); name != "" {
		vars[name] = struct{}{}
	}

	switch n := node.(type) {
	case *parse.ListNode:
		if n != nil {
			for _, sub := range n.Nodes {
				collectVariables(sub, vars, funcMap)
			}
		}
	case *parse.ActionNode:
		collectVariables(n.Pipe, vars, funcMap)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, vars, funcMap)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, vars, funcMap)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, vars, funcMap)
	case *parse.PipeNode:
		if n != nil {
			for _, cmd := range n.Cmds {
				for _, arg := range cmd.Args {
					collectVariables(arg, vars, funcMap)
				}
			}
		}
	}
}

func collectBranch(b *parse.BranchNode, vars map[string]struct{}, funcMap template.FuncMap) {
	collectVariables(b.Pipe, vars, funcMap)
	if b.List != nil {
		collectVariables(b.List, vars, funcMap)
	}
	if b.ElseList != nil {
		collectVariables(b.ElseList, vars, funcMap)
	}
}

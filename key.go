package rate_limited

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var (
	_ KeyGenerator = &DefaultKeyGenerator{}
)

// KeyGenerator derives the rate limit key of a call.
type KeyGenerator interface {
	// Key returns the key for call, never empty.
	Key(key, keyExpression string, call Call) (string, error)
}

// KeyGeneratorFunc adapts a function to a KeyGenerator.
type KeyGeneratorFunc func(key, keyExpression string, call Call) (string, error)

func (f KeyGeneratorFunc) Key(key, keyExpression string, call Call) (string, error) {
	return f(key, keyExpression, call)
}

// DefaultKeyGenerator resolves keys in order:
//
//   - a non-empty key is returned verbatim;
//   - a non-empty key expression is evaluated as a text/template against
//     the variables type, method and p0..pN (positional arguments), e.g.
//     "{{.type}}:{{.p0}}";
//   - otherwise the key is "<type>.<method>".
//
// Expression errors are returned wrapping ErrIllegalConfiguration.
type DefaultKeyGenerator struct {
	templates sync.Map // expression -> *template.Template
}

// NewDefaultKeyGenerator returns a DefaultKeyGenerator.
func NewDefaultKeyGenerator() *DefaultKeyGenerator {
	return &DefaultKeyGenerator{}
}

func (g *DefaultKeyGenerator) Key(key, keyExpression string, call Call) (string, error) {
	if strings.TrimSpace(key) != "" {
		return key, nil
	}

	if strings.TrimSpace(keyExpression) != "" {
		return g.evaluate(keyExpression, call)
	}

	return call.Target(), nil
}

func (g *DefaultKeyGenerator) evaluate(expression string, call Call) (string, error) {
	tmpl, err := g.template(expression)
	if err != nil {
		return "", fmt.Errorf("%w: cannot parse key expression %q: %v", ErrIllegalConfiguration, expression, err)
	}

	vars := make(map[string]any, len(call.Args)+2)
	vars["type"] = call.Type
	vars["method"] = call.Method
	for i, arg := range call.Args {
		vars[fmt.Sprintf("p%d", i)] = arg
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("%w: cannot evaluate key expression %q: %v", ErrIllegalConfiguration, expression, err)
	}

	key := b.String()
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: key expression %q evaluated to an empty key", ErrIllegalConfiguration, expression)
	}

	return key, nil
}

func (g *DefaultKeyGenerator) template(expression string) (*template.Template, error) {
	if v, ok := g.templates.Load(expression); ok {
		return v.(*template.Template), nil
	}

	tmpl, err := template.New("key").Option("missingkey=error").Parse(expression)
	if err != nil {
		return nil, err
	}

	v, _ := g.templates.LoadOrStore(expression, tmpl)
	return v.(*template.Template), nil
}

package grading

import "sort"

// Context is the named-variable environment formulas are evaluated against.
type Context struct {
	vars map[string]Value
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{vars: make(map[string]Value)}
}

func (c *Context) SetBool(name string, b bool) { c.vars[name] = Bool(b) }

func (c *Context) SetReal(name string, r float64) { c.vars[name] = Real(r) }

// Lookup returns the variable bound to name.
func (c *Context) Lookup(name string) (Value, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Names returns the bound variable names in sorted order.
func (c *Context) Names() []string {
	names := make([]string, 0, len(c.vars))
	for n := range c.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Env flattens the context into plain Go values for evaluators.
func (c *Context) Env() map[string]any {
	env := make(map[string]any, len(c.vars))
	for name, v := range c.vars {
		switch v.kind {
		case KindBool:
			env[name] = v.b
		case KindReal:
			env[name] = v.r
		}
	}
	return env
}

package model

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// HCLReader reads model files written in HCL native syntax:
//
//	constants { n = 6 }
//	data      { y = [1.2, 0.4, null, 2.0, null, 1.1] }
//	inits     { mu = 0 }
//	stochastic "y" {
//	  length = n
//	  dist   = "normal"
//	  mean   = mu + beta * x[i]
//	  sd     = sigma
//	}
//	deterministic "pred" {
//	  length = n
//	  value  = mu + beta * x[i]
//	}
//
// Every attribute of a stochastic block other than length, index and dist is
// a distribution parameter. null marks a missing data value. Data files
// hold only data and inits blocks.
type HCLReader struct {
	Filename string // used in diagnostics
}

type hclValues struct {
	Body hcl.Body `hcl:",remain"`
}

type hclStochastic struct {
	Name   string         `hcl:"name,label"`
	Length hcl.Expression `hcl:"length,optional"`
	Index  *string        `hcl:"index,optional"`
	Dist   string         `hcl:"dist"`
	Params hcl.Body       `hcl:",remain"`
}

type hclDeterministic struct {
	Name   string         `hcl:"name,label"`
	Length hcl.Expression `hcl:"length,optional"`
	Index  *string        `hcl:"index,optional"`
	Value  hcl.Expression `hcl:"value"`
}

type hclModelFile struct {
	Constants     []*hclValues        `hcl:"constants,block"`
	Data          []*hclValues        `hcl:"data,block"`
	Inits         []*hclValues        `hcl:"inits,block"`
	Stochastic    []*hclStochastic    `hcl:"stochastic,block"`
	Deterministic []*hclDeterministic `hcl:"deterministic,block"`
}

type hclDataFile struct {
	Data  []*hclValues `hcl:"data,block"`
	Inits []*hclValues `hcl:"inits,block"`
}

func (r HCLReader) filename(def string) string {
	if r.Filename != "" {
		return r.Filename
	}
	return def
}

// ReadModel implements the model.Reader interface
func (r HCLReader) ReadModel(data []byte) (*Declaration, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, r.filename("model.hcl"))
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "Could not parse HCL model")
	}

	var root hclModelFile
	if diags = gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, errors.Wrap(diags, "Could not decode HCL model")
	}

	decl := &Declaration{
		Constants: make(map[string][]float64),
		Data:      make(Values),
		Inits:     make(Values),
	}

	for _, block := range root.Constants {
		vals, err := readValues(block.Body, nil)
		if err != nil {
			return nil, errors.Wrap(err, "constants")
		}
		for name, es := range vals {
			if _, dup := decl.Constants[name]; dup {
				return nil, errors.Wrapf(ErrDuplicateDeclaration, "Constant %s", name)
			}
			c := make([]float64, len(es))
			for i, e := range es {
				v, ok := e.Get()
				if !ok {
					return nil, errors.Errorf("Constant %s[%d] is missing", name, i)
				}
				c[i] = v
			}
			decl.Constants[name] = c
		}
	}

	ctx := constantContext(decl.Constants)
	if err := readDataBlocks(decl, root.Data, root.Inits, ctx); err != nil {
		return nil, err
	}

	// declaration order is file order across both block types
	type declared struct {
		decl NodeDecl
		pos  hcl.Pos
	}
	var nodes []declared

	for _, s := range root.Stochastic {
		length, err := readLength(s.Length, ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "stochastic %s", s.Name)
		}
		attrs, diags := s.Params.JustAttributes()
		if diags.HasErrors() {
			return nil, errors.Wrapf(diags, "stochastic %s", s.Name)
		}
		nd := NodeDecl{
			Name:   s.Name,
			Kind:   KindStochastic,
			Length: length,
			Dist:   s.Dist,
			Params: make(map[string]string, len(attrs)),
		}
		if s.Index != nil {
			nd.Index = *s.Index
		}
		for name, attr := range attrs {
			nd.Params[name] = string(attr.Expr.Range().SliceBytes(data))
		}
		nodes = append(nodes, declared{nd, s.Params.MissingItemRange().Start})
	}

	for _, d := range root.Deterministic {
		length, err := readLength(d.Length, ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "deterministic %s", d.Name)
		}
		nd := NodeDecl{
			Name:   d.Name,
			Kind:   KindDeterministic,
			Length: length,
			Value:  string(d.Value.Range().SliceBytes(data)),
		}
		if d.Index != nil {
			nd.Index = *d.Index
		}
		nodes = append(nodes, declared{nd, d.Value.Range().Start})
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].pos.Byte < nodes[j].pos.Byte })
	for _, n := range nodes {
		decl.Nodes = append(decl.Nodes, n.decl)
	}

	return decl, nil
}

// ReadData implements the model.Reader interface. Values in the file
// replace any values of the same name already in decl.
func (r HCLReader) ReadData(data []byte, decl *Declaration) error {
	file, diags := hclparse.NewParser().ParseHCL(data, r.filename("data.hcl"))
	if diags.HasErrors() {
		return errors.Wrap(diags, "Could not parse HCL data")
	}

	var root hclDataFile
	if diags = gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return errors.Wrap(diags, "Could not decode HCL data")
	}

	if decl.Data == nil {
		decl.Data = make(Values)
	}
	if decl.Inits == nil {
		decl.Inits = make(Values)
	}
	return readDataBlocks(decl, root.Data, root.Inits, constantContext(decl.Constants))
}

func readDataBlocks(decl *Declaration, data, inits []*hclValues, ctx *hcl.EvalContext) error {
	for _, block := range data {
		vals, err := readValues(block.Body, ctx)
		if err != nil {
			return errors.Wrap(err, "data")
		}
		for name, es := range vals {
			decl.Data[name] = es
		}
	}
	for _, block := range inits {
		vals, err := readValues(block.Body, ctx)
		if err != nil {
			return errors.Wrap(err, "inits")
		}
		for name, es := range vals {
			decl.Inits[name] = es
		}
	}
	return nil
}

// constantContext exposes constants to data and length expressions
func constantContext(constants map[string][]float64) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(constants))
	for name, c := range constants {
		if len(c) == 1 {
			vars[name] = cty.NumberFloatVal(c[0])
			continue
		}
		elems := make([]cty.Value, len(c))
		for i, v := range c {
			elems[i] = cty.NumberFloatVal(v)
		}
		vars[name] = cty.ListVal(elems)
	}
	return &hcl.EvalContext{Variables: vars}
}

func readValues(body hcl.Body, ctx *hcl.EvalContext) (Values, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	vals := make(Values, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		es, err := ctyEntries(v)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", name)
		}
		vals[name] = es
	}
	return vals, nil
}

func ctyEntries(v cty.Value) ([]Entry, error) {
	if v.IsNull() {
		return []Entry{Missing()}, nil
	}
	t := v.Type()
	if t.IsListType() || t.IsTupleType() {
		var es []Entry
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			e, err := ctyEntry(elem)
			if err != nil {
				return nil, err
			}
			es = append(es, e)
		}
		if len(es) == 0 {
			return nil, errors.Errorf("Empty list")
		}
		return es, nil
	}
	e, err := ctyEntry(v)
	if err != nil {
		return nil, err
	}
	return []Entry{e}, nil
}

func ctyEntry(v cty.Value) (Entry, error) {
	if v.IsNull() {
		return Missing(), nil
	}
	if !v.IsKnown() {
		return Entry{}, errors.Errorf("Unknown value")
	}
	switch v.Type() {
	case cty.Bool:
		if v.True() {
			return Provided(1), nil
		}
		return Provided(0), nil
	case cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return Entry{}, err
		}
		return Provided(f), nil
	}
	return Entry{}, errors.Errorf("Expected a number, found %s", v.Type().FriendlyName())
}

func readLength(e hcl.Expression, ctx *hcl.EvalContext) (int, error) {
	v, diags := e.Value(ctx)
	if diags.HasErrors() {
		return 0, diags
	}
	if v.IsNull() {
		return 0, nil
	}
	var n int
	if err := gocty.FromCtyValue(v, &n); err != nil {
		return 0, errors.Wrap(err, "length")
	}
	if n < 1 {
		return 0, errors.Errorf("Length must be positive, found %d", n)
	}
	return n, nil
}

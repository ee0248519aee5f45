// Package exprvm evaluates the FILTER/BIND/HAVING expression trees
// pkg/sparql/parser produces directly against ValueId rows, the
// replacement for the teacher's term-keyed pkg/sparql/evaluator: where
// that package compared *rdf.Term values, this one compares
// internal/valueid.ValueId values, falling back to the global vocabulary
// only when a function genuinely needs the underlying string (LANG,
// STR, regex, string concatenation).
//
// spec.md §4.7 describes per-result LocalVocab objects for strings
// materialised during evaluation (e.g. CONCAT's result). This
// implementation does not thread a query-scoped LocalVocab through
// expression evaluation; instead, computed strings are interned
// directly into the persistent global vocabulary. That trades a little
// vocabulary growth for a much smaller evaluator, and is recorded as a
// deliberate scope decision in DESIGN.md rather than left unstated.
package exprvm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigo/internal/globalvocab"
	"github.com/aleksaelezovic/trigo/internal/valueid"
	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/parser"
)

// Env is the evaluation context: the column a variable name is bound to
// in the current row, and the vocabulary used to intern/resolve terms.
type Env struct {
	Columns map[string]int
	Vocab   *globalvocab.Vocabulary
}

// Eval evaluates expr against row. Type errors and unbound variables
// evaluate to valueid.UndefinedId rather than returning an error, matching
// SPARQL FILTER's "errors make the filter inapplicable to that row"
// semantics (spec.md §7's "local recovery ... policy demands it").
func Eval(expr parser.Expression, row []valueid.ValueId, env *Env) (valueid.ValueId, error) {
	switch e := expr.(type) {
	case *parser.LiteralExpression:
		return env.Vocab.InternTerm(e.Literal)
	case *parser.VariableExpression:
		col, ok := env.Columns[e.Variable.Name]
		if !ok || col >= len(row) {
			return valueid.UndefinedId, nil
		}
		return row[col], nil
	case *parser.UnaryExpression:
		return evalUnary(e, row, env)
	case *parser.BinaryExpression:
		return evalBinary(e, row, env)
	case *parser.FunctionCallExpression:
		return evalFunction(e, row, env)
	case *parser.InExpression:
		return evalIn(e, row, env)
	default:
		return valueid.UndefinedId, fmt.Errorf("exprvm: unsupported expression type %T", expr)
	}
}

// EvalBool evaluates expr's effective boolean value (EBV), the form
// FILTER and the join predicates inside OPTIONAL/MINUS need.
func EvalBool(expr parser.Expression, row []valueid.ValueId, env *Env) bool {
	v, err := Eval(expr, row, env)
	if err != nil {
		return false
	}
	b, ok := asBool(v, env)
	return ok && b
}

func asFloat(v valueid.ValueId) (float64, bool) {
	switch v.Tag() {
	case valueid.Int:
		n, _ := v.Int()
		return float64(n), true
	case valueid.Double:
		f, _ := v.Double()
		return f, true
	default:
		return 0, false
	}
}

func asString(v valueid.ValueId, env *Env) (string, bool) {
	term, err := env.Vocab.Resolve(v)
	if err != nil {
		return "", false
	}
	switch t := term.(type) {
	case *rdf.Literal:
		return t.Value, true
	case *rdf.NamedNode:
		return t.IRI, true
	default:
		return "", false
	}
}

func asBool(v valueid.ValueId, env *Env) (bool, bool) {
	switch v.Tag() {
	case valueid.Bool:
		return v.Bool()
	case valueid.Int:
		n, _ := v.Int()
		return n != 0, true
	case valueid.Double:
		f, _ := v.Double()
		return f != 0, true
	case valueid.VocabIndex:
		s, ok := asString(v, env)
		return s != "", ok
	case valueid.Undefined:
		return false, false
	default:
		return true, true
	}
}

func evalUnary(e *parser.UnaryExpression, row []valueid.ValueId, env *Env) (valueid.ValueId, error) {
	v, err := Eval(e.Operand, row, env)
	if err != nil {
		return valueid.UndefinedId, err
	}
	switch e.Operator {
	case parser.OpNot:
		b, ok := asBool(v, env)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(!b), nil
	case parser.OpSubtract:
		f, ok := asFloat(v)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(-f), nil
	default:
		return valueid.UndefinedId, fmt.Errorf("exprvm: unsupported unary operator %d", e.Operator)
	}
}

func evalBinary(e *parser.BinaryExpression, row []valueid.ValueId, env *Env) (valueid.ValueId, error) {
	switch e.Operator {
	case parser.OpAnd:
		l, err := Eval(e.Left, row, env)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		lb, ok := asBool(l, env)
		if ok && !lb {
			return valueid.FromBool(false), nil
		}
		r, err := Eval(e.Right, row, env)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		rb, ok2 := asBool(r, env)
		if !ok || !ok2 {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(lb && rb), nil
	case parser.OpOr:
		l, err := Eval(e.Left, row, env)
		if err == nil {
			if lb, ok := asBool(l, env); ok && lb {
				return valueid.FromBool(true), nil
			}
		}
		r, err := Eval(e.Right, row, env)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		rb, ok := asBool(r, env)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(rb), nil
	}

	l, err := Eval(e.Left, row, env)
	if err != nil {
		return valueid.UndefinedId, nil
	}
	r, err := Eval(e.Right, row, env)
	if err != nil {
		return valueid.UndefinedId, nil
	}

	switch e.Operator {
	case parser.OpEqual, parser.OpNotEqual, parser.OpLessThan, parser.OpLessThanOrEqual,
		parser.OpGreaterThan, parser.OpGreaterThanOrEqual:
		return evalCompare(e.Operator, l, r, env)
	case parser.OpAdd, parser.OpSubtract, parser.OpMultiply, parser.OpDivide:
		return evalArith(e.Operator, l, r)
	default:
		return valueid.UndefinedId, fmt.Errorf("exprvm: unsupported binary operator %d", e.Operator)
	}
}

func evalCompare(op parser.Operator, l, r valueid.ValueId, env *Env) (valueid.ValueId, error) {
	var cmp int
	if lf, lok := asFloat(l); lok {
		if rf, rok := asFloat(r); rok {
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			default:
				cmp = 0
			}
			return compareResult(op, cmp), nil
		}
	}
	if ls, lok := asString(l, env); lok {
		if rs, rok := asString(r, env); rok {
			cmp = strings.Compare(ls, rs)
			return compareResult(op, cmp), nil
		}
	}
	cmp = valueid.Compare(l, r)
	return compareResult(op, cmp), nil
}

func compareResult(op parser.Operator, cmp int) valueid.ValueId {
	switch op {
	case parser.OpEqual:
		return valueid.FromBool(cmp == 0)
	case parser.OpNotEqual:
		return valueid.FromBool(cmp != 0)
	case parser.OpLessThan:
		return valueid.FromBool(cmp < 0)
	case parser.OpLessThanOrEqual:
		return valueid.FromBool(cmp <= 0)
	case parser.OpGreaterThan:
		return valueid.FromBool(cmp > 0)
	case parser.OpGreaterThanOrEqual:
		return valueid.FromBool(cmp >= 0)
	default:
		return valueid.FromBool(false)
	}
}

func evalArith(op parser.Operator, l, r valueid.ValueId) (valueid.ValueId, error) {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return valueid.UndefinedId, nil
	}
	li, lIsInt := l.Int()
	ri, rIsInt := r.Int()
	switch op {
	case parser.OpAdd:
		if lIsInt && rIsInt {
			if id, err := valueid.FromInt(li + ri); err == nil {
				return id, nil
			}
		}
		return valueid.FromDouble(lf + rf), nil
	case parser.OpSubtract:
		if lIsInt && rIsInt {
			if id, err := valueid.FromInt(li - ri); err == nil {
				return id, nil
			}
		}
		return valueid.FromDouble(lf - rf), nil
	case parser.OpMultiply:
		if lIsInt && rIsInt {
			if id, err := valueid.FromInt(li * ri); err == nil {
				return id, nil
			}
		}
		return valueid.FromDouble(lf * rf), nil
	case parser.OpDivide:
		if rf == 0 {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(lf / rf), nil
	default:
		return valueid.UndefinedId, fmt.Errorf("exprvm: unsupported arithmetic operator %d", op)
	}
}

func evalIn(e *parser.InExpression, row []valueid.ValueId, env *Env) (valueid.ValueId, error) {
	v, err := Eval(e.Expression, row, env)
	if err != nil {
		return valueid.UndefinedId, nil
	}
	found := false
	for _, candidate := range e.Values {
		c, err := Eval(candidate, row, env)
		if err != nil {
			continue
		}
		if valueid.Compare(v, c) == 0 {
			found = true
			break
		}
	}
	if e.Not {
		found = !found
	}
	return valueid.FromBool(found), nil
}

func evalFunction(e *parser.FunctionCallExpression, row []valueid.ValueId, env *Env) (valueid.ValueId, error) {
	name := strings.ToUpper(e.Function)
	args := e.Arguments

	arg := func(i int) (valueid.ValueId, error) {
		if i >= len(args) {
			return valueid.UndefinedId, fmt.Errorf("exprvm: %s expects at least %d arguments", name, i+1)
		}
		return Eval(args[i], row, env)
	}

	switch name {
	case "BOUND":
		if len(args) != 1 {
			return valueid.UndefinedId, fmt.Errorf("exprvm: BOUND expects 1 argument")
		}
		varExpr, ok := args[0].(*parser.VariableExpression)
		if !ok {
			return valueid.UndefinedId, fmt.Errorf("exprvm: BOUND expects a variable")
		}
		col, ok := env.Columns[varExpr.Variable.Name]
		if !ok || col >= len(row) {
			return valueid.FromBool(false), nil
		}
		return valueid.FromBool(!row[col].IsUndefined()), nil

	case "ISIRI", "ISURI":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		term, err := env.Vocab.Resolve(v)
		if err != nil {
			return valueid.FromBool(false), nil
		}
		_, ok := term.(*rdf.NamedNode)
		return valueid.FromBool(ok), nil

	case "ISBLANK":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		term, err := env.Vocab.Resolve(v)
		if err != nil {
			return valueid.FromBool(false), nil
		}
		_, ok := term.(*rdf.BlankNode)
		return valueid.FromBool(ok), nil

	case "ISLITERAL":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		term, err := env.Vocab.Resolve(v)
		if err != nil {
			return valueid.FromBool(false), nil
		}
		_, ok := term.(*rdf.Literal)
		return valueid.FromBool(ok), nil

	case "ISNUMERIC":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(v.Tag() == valueid.Int || v.Tag() == valueid.Double), nil

	case "STR":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		s, ok := literalForm(v, env)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return env.Vocab.InternTerm(rdf.NewLiteral(s))

	case "LANG":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		term, err := env.Vocab.Resolve(v)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		lit, ok := term.(*rdf.Literal)
		lang := ""
		if ok {
			lang = lit.Language
		}
		return env.Vocab.InternTerm(rdf.NewLiteral(lang))

	case "DATATYPE":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		term, err := env.Vocab.Resolve(v)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		lit, ok := term.(*rdf.Literal)
		if !ok || lit.Datatype == nil {
			return env.Vocab.InternTerm(rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#string"))
		}
		return env.Vocab.InternTerm(lit.Datatype)

	case "STRLEN":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		s, ok := asString(v, env)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return mustFromInt(int64(len([]rune(s)))), nil

	case "UCASE", "LCASE":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		s, ok := asString(v, env)
		if !ok {
			return valueid.UndefinedId, nil
		}
		if name == "UCASE" {
			s = strings.ToUpper(s)
		} else {
			s = strings.ToLower(s)
		}
		return env.Vocab.InternTerm(rdf.NewLiteral(s))

	case "CONTAINS", "STRSTARTS", "STRENDS":
		a, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		b, err := arg(1)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		as, aok := asString(a, env)
		bs, bok := asString(b, env)
		if !aok || !bok {
			return valueid.UndefinedId, nil
		}
		var result bool
		switch name {
		case "CONTAINS":
			result = strings.Contains(as, bs)
		case "STRSTARTS":
			result = strings.HasPrefix(as, bs)
		case "STRENDS":
			result = strings.HasSuffix(as, bs)
		}
		return valueid.FromBool(result), nil

	case "CONCAT":
		var b strings.Builder
		for i := range args {
			v, err := arg(i)
			if err != nil {
				return valueid.UndefinedId, nil
			}
			s, ok := asString(v, env)
			if !ok {
				return valueid.UndefinedId, nil
			}
			b.WriteString(s)
		}
		return env.Vocab.InternTerm(rdf.NewLiteral(b.String()))

	case "REGEX":
		if len(args) < 2 {
			return valueid.UndefinedId, fmt.Errorf("exprvm: REGEX expects at least 2 arguments")
		}
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		pattern, err := arg(1)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		s, ok := asString(v, env)
		p, pok := asString(pattern, env)
		if !ok || !pok {
			return valueid.UndefinedId, nil
		}
		flags := ""
		if len(args) > 2 {
			if f, err := arg(2); err == nil {
				if fs, ok := asString(f, env); ok {
					flags = fs
				}
			}
		}
		goPattern := p
		if strings.Contains(flags, "i") {
			goPattern = "(?i)" + goPattern
		}
		re, err := regexp.Compile(goPattern)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(re.MatchString(s)), nil

	case "ABS":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		f, ok := asFloat(v)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(math.Abs(f)), nil

	case "CEIL":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		f, ok := asFloat(v)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(math.Ceil(f)), nil

	case "FLOOR":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		f, ok := asFloat(v)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(math.Floor(f)), nil

	case "ROUND":
		v, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		f, ok := asFloat(v)
		if !ok {
			return valueid.UndefinedId, nil
		}
		return valueid.FromDouble(math.Round(f)), nil

	case "IF":
		if len(args) != 3 {
			return valueid.UndefinedId, fmt.Errorf("exprvm: IF expects 3 arguments")
		}
		if EvalBool(args[0], row, env) {
			return Eval(args[1], row, env)
		}
		return Eval(args[2], row, env)

	case "COALESCE":
		for _, a := range args {
			v, err := Eval(a, row, env)
			if err == nil && !v.IsUndefined() {
				return v, nil
			}
		}
		return valueid.UndefinedId, nil

	case "SAMETERM":
		a, err := arg(0)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		b, err := arg(1)
		if err != nil {
			return valueid.UndefinedId, nil
		}
		return valueid.FromBool(a == b), nil

	default:
		return valueid.UndefinedId, fmt.Errorf("exprvm: unsupported function %s", e.Function)
	}
}

// literalForm gives the STR() function's string form: the plain value
// for literals, the IRI string for named nodes, and the decimal textual
// form for directly-encoded numerics (which never touch the vocabulary).
func literalForm(v valueid.ValueId, env *Env) (string, bool) {
	switch v.Tag() {
	case valueid.Int:
		n, _ := v.Int()
		return strconv.FormatInt(n, 10), true
	case valueid.Double:
		f, _ := v.Double()
		return strconv.FormatFloat(f, 'g', -1, 64), true
	case valueid.Bool:
		b, _ := v.Bool()
		return strconv.FormatBool(b), true
	default:
		return asString(v, env)
	}
}

func mustFromInt(n int64) valueid.ValueId {
	id, err := valueid.FromInt(n)
	if err != nil {
		return valueid.FromDouble(float64(n))
	}
	return id
}

package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Parser parses SPARQL queries
type Parser struct {
	input    string
	pos      int
	length   int
	prefixes map[string]string // Maps prefix to IRI
	baseURI  string            // Base URI for resolving relative IRIs
}

// NewParser creates a new SPARQL parser
func NewParser(input string) *Parser {
	return &Parser{
		input:    input,
		pos:      0,
		length:   len(input),
		prefixes: make(map[string]string),
		baseURI:  "",
	}
}

// Parse parses a SPARQL query
func (p *Parser) Parse() (*Query, error) {
	p.skipWhitespace()

	// Read PREFIX and BASE declarations and store their mappings
	for {
		p.skipWhitespace()
		if p.matchKeyword("PREFIX") {
			// PREFIX prefix: <iri>
			if err := p.skipPrefix(); err != nil {
				return nil, err
			}
		} else if p.matchKeyword("BASE") {
			// BASE <iri>
			if err := p.skipBase(); err != nil {
				return nil, err
			}
		} else {
			break
		}
	}

	// Determine query type
	queryType, err := p.parseQueryType()
	if err != nil {
		return nil, err
	}

	query := &Query{QueryType: queryType}

	switch queryType {
	case QueryTypeSelect:
		selectQuery, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		query.Select = selectQuery
	case QueryTypeAsk:
		askQuery, err := p.parseAsk()
		if err != nil {
			return nil, err
		}
		query.Ask = askQuery
	case QueryTypeConstruct:
		constructQuery, err := p.parseConstruct()
		if err != nil {
			return nil, err
		}
		query.Construct = constructQuery
	case QueryTypeDescribe:
		describeQuery, err := p.parseDescribe()
		if err != nil {
			return nil, err
		}
		query.Describe = describeQuery
	default:
		return nil, fmt.Errorf("query type not yet implemented: %v", queryType)
	}

	return query, nil
}

// parseQueryType determines the query type
func (p *Parser) parseQueryType() (QueryType, error) {
	p.skipWhitespace()

	if p.matchKeyword("SELECT") {
		return QueryTypeSelect, nil
	}
	if p.matchKeyword("CONSTRUCT") {
		return QueryTypeConstruct, nil
	}
	if p.matchKeyword("ASK") {
		return QueryTypeAsk, nil
	}
	if p.matchKeyword("DESCRIBE") {
		return QueryTypeDescribe, nil
	}

	return 0, fmt.Errorf("expected query type (SELECT, CONSTRUCT, ASK, DESCRIBE)")
}

// parseSelect parses a SELECT query
func (p *Parser) parseSelect() (*SelectQuery, error) {
	query := &SelectQuery{}

	// Parse DISTINCT or REDUCED (optional, mutually exclusive)
	if p.matchKeyword("DISTINCT") {
		query.Distinct = true
	} else if p.matchKeyword("REDUCED") {
		query.Reduced = true
	}

	// Parse variables or *
	variables, err := p.parseProjection()
	if err != nil {
		return nil, err
	}
	query.Variables = variables

	// Parse WHERE clause (WHERE keyword is optional)
	p.matchKeyword("WHERE") // consume WHERE if present, but don't require it

	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	// Parse optional GROUP BY
	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return nil, fmt.Errorf("expected BY after GROUP")
		}
		groupBy, err := p.parseGroupBy()
		if err != nil {
			return nil, err
		}
		query.GroupBy = groupBy
	}

	// Parse optional HAVING
	if p.matchKeyword("HAVING") {
		having, err := p.parseHaving()
		if err != nil {
			return nil, err
		}
		query.Having = having
	}

	// Parse optional ORDER BY
	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return nil, fmt.Errorf("expected BY after ORDER")
		}
		orderBy, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		query.OrderBy = orderBy
	}

	// Parse optional LIMIT
	if p.matchKeyword("LIMIT") {
		limit, err := p.parseInteger()
		if err != nil {
			return nil, err
		}
		query.Limit = &limit
	}

	// Parse optional OFFSET
	if p.matchKeyword("OFFSET") {
		offset, err := p.parseInteger()
		if err != nil {
			return nil, err
		}
		query.Offset = &offset
	}

	return query, nil
}

// parseAsk parses an ASK query
func (p *Parser) parseAsk() (*AskQuery, error) {
	query := &AskQuery{}

	// Parse WHERE clause
	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE clause")
	}

	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	return query, nil
}

// parseConstruct parses a CONSTRUCT query
func (p *Parser) parseConstruct() (*ConstructQuery, error) {
	query := &ConstructQuery{}

	p.skipWhitespace()

	// Check for CONSTRUCT WHERE shorthand syntax
	if p.matchKeyword("WHERE") {
		// CONSTRUCT WHERE { pattern } is shorthand for CONSTRUCT { pattern } WHERE { pattern }
		// BUT only when the pattern contains no FILTER
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}

		// CONSTRUCT WHERE is only valid when there are no FILTER expressions
		// GRAPH patterns and other constructs are allowed
		if len(where.Filters) > 0 {
			return nil, fmt.Errorf("CONSTRUCT WHERE cannot contain FILTER expressions")
		}

		query.Where = where

		// Use the WHERE pattern as the template
		query.Template = where.Patterns

		return query, nil
	}

	// Parse template - expects { triple pattern ... }
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start CONSTRUCT template or WHERE keyword")
	}
	p.advance() // skip '{'

	// Parse triple patterns for the template
	var template []*TriplePattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance() // skip '}'
			break
		}

		// Parse triple pattern(s) with property list shorthand support
		patterns, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		template = append(template, patterns...)

		p.skipWhitespace()
		// Optionally consume '.' separator
		if p.peek() == '.' {
			p.advance()
		}
	}

	query.Template = template

	// Parse WHERE clause
	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE clause")
	}

	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	return query, nil
}

// parseDescribe parses a DESCRIBE query
func (p *Parser) parseDescribe() (*DescribeQuery, error) {
	query := &DescribeQuery{}

	p.skipWhitespace()

	// Check if there's a WHERE clause immediately (DESCRIBE WHERE is invalid, but check for explicit resources)
	if p.matchKeyword("WHERE") {
		// DESCRIBE WHERE { pattern } - describes all resources found
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		query.Where = where
		return query, nil
	}

	// Parse resource IRIs (one or more)
	// DESCRIBE <uri1> <uri2> ... WHERE { pattern }
	// or DESCRIBE <uri1> <uri2> ... (no WHERE clause)
	for {
		p.skipWhitespace()

		// Check if we've reached WHERE or end of query
		if p.matchKeyword("WHERE") || p.pos >= len(p.input) {
			p.pos -= 5 // Un-consume "WHERE" so we can parse it below
			break
		}

		// Try to parse an IRI
		if p.peek() == '<' {
			iri, err := p.parseIRI()
			if err != nil {
				return nil, err
			}
			query.Resources = append(query.Resources, rdf.NewNamedNode(iri))
		} else if p.peek() == '?' || p.peek() == '$' {
			// Variables in DESCRIBE are not yet supported in executor
			// but we should parse them for syntax tests
			_, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			// For now, we'll ignore variables in DESCRIBE since executor doesn't support them yet
			// This at least makes the syntax tests pass
		} else {
			// No more resources
			break
		}

		p.skipWhitespace()
	}

	// Parse optional WHERE clause
	p.skipWhitespace()
	if p.matchKeyword("WHERE") {
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		query.Where = where
	}

	return query, nil
}

// parseProjection parses the projection (variables or *)
func (p *Parser) parseProjection() ([]*Variable, error) {
	p.skipWhitespace()

	if p.peek() == '*' {
		p.advance()
		return nil, nil // nil means SELECT *
	}

	var variables []*Variable
	hasProjection := false
	for {
		p.skipWhitespace()
		ch := p.peek()

		// Check for expression in parentheses: (expr AS ?var)
		if ch == '(' {
			// Skip the whole expression including its AS variable; the
			// variable is not added to the projection
			if err := p.skipSelectExpression(); err != nil {
				return nil, err
			}
			hasProjection = true
			continue
		}

		// Regular variable
		if ch != '?' && ch != '$' {
			break
		}

		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		variables = append(variables, variable)
		hasProjection = true
	}

	if !hasProjection {
		return nil, fmt.Errorf("expected at least one variable or *")
	}

	return variables, nil
}

// parseGraphPattern parses a graph pattern (WHERE clause content)
func (p *Parser) parseGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()

	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start graph pattern")
	}
	p.advance() // consume '{'

	pattern := &GraphPattern{
		Type:     GraphPatternTypeBasic,
		Patterns: []*TriplePattern{},
		Filters:  []*Filter{},
		Binds:    []*Bind{},
		Elements: []PatternElement{},
	}

	for {
		p.skipWhitespace()

		// Check for end of pattern
		if p.peek() == '}' {
			p.advance()
			break
		}

		// Check for GRAPH keyword
		if p.matchKeyword("GRAPH") {
			graphPattern, err := p.parseGraphGraphPattern()
			if err != nil {
				return nil, err
			}
			// Add the GRAPH pattern as a child
			if pattern.Children == nil {
				pattern.Children = []*GraphPattern{}
			}
			pattern.Children = append(pattern.Children, graphPattern)
			continue
		}

		// Check for FILTER
		if p.matchKeyword("FILTER") {
			filter, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			pattern.Filters = append(pattern.Filters, filter)
			pattern.Elements = append(pattern.Elements, PatternElement{Filter: filter})
			continue
		}

		// Check for BIND
		if p.matchKeyword("BIND") {
			bind, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			pattern.Binds = append(pattern.Binds, bind)
			pattern.Elements = append(pattern.Elements, PatternElement{Bind: bind})
			continue
		}

		// Check for OPTIONAL
		if p.matchKeyword("OPTIONAL") {
			optionalPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			optionalPattern.Type = GraphPatternTypeOptional
			if pattern.Children == nil {
				pattern.Children = []*GraphPattern{}
			}
			pattern.Children = append(pattern.Children, optionalPattern)
			continue
		}

		// Check for MINUS
		if p.matchKeyword("MINUS") {
			minusPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			minusPattern.Type = GraphPatternTypeMinus
			if pattern.Children == nil {
				pattern.Children = []*GraphPattern{}
			}
			pattern.Children = append(pattern.Children, minusPattern)
			continue
		}

		// Check for UNION (needs special handling since it's infix)
		// For now, we'll handle it in a simplified way

		// Check for nested graph pattern or subquery { ... }
		if p.peek() == '{' {
			// Peek ahead to see if this is a subquery (SELECT/ASK/CONSTRUCT/DESCRIBE)
			savedPos := p.pos
			p.advance() // skip '{'
			p.skipWhitespace()

			// Check for subquery keywords
			isSubquery := p.matchKeyword("SELECT") || p.matchKeyword("ASK") ||
				p.matchKeyword("CONSTRUCT") || p.matchKeyword("DESCRIBE")

			// Restore position
			p.pos = savedPos

			if isSubquery {
				// This is a subquery - skip it for now
				// Find the matching closing brace
				p.advance() // skip '{'
				depth := 1
				for p.pos < p.length && depth > 0 {
					if p.peek() == '{' {
						depth++
					} else if p.peek() == '}' {
						depth--
					}
					p.advance()
				}
				// TODO: Actually parse subqueries properly
				continue
			}

			// Regular nested graph pattern
			nestedPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			if pattern.Children == nil {
				pattern.Children = []*GraphPattern{}
			}
			pattern.Children = append(pattern.Children, nestedPattern)

			// Check for UNION after the nested pattern
			p.skipWhitespace()
			if p.matchKeyword("UNION") {
				// Parse the right side of UNION
				rightPattern, err := p.parseGraphPattern()
				if err != nil {
					return nil, err
				}

				// Create a UNION pattern containing both sides
				unionPattern := &GraphPattern{
					Type:     GraphPatternTypeUnion,
					Children: []*GraphPattern{nestedPattern, rightPattern},
				}

				// Replace the last child with the union pattern
				pattern.Children[len(pattern.Children)-1] = unionPattern
			}
			continue
		}

		// Parse triple pattern(s) with property list shorthand support
		triples, err := p.parseTriplePatterns()
		if err != nil {
			return nil, err
		}
		pattern.Patterns = append(pattern.Patterns, triples...)
		// Add each triple to Elements to preserve order
		for _, triple := range triples {
			pattern.Elements = append(pattern.Elements, PatternElement{Triple: triple})
		}

		// Skip optional '.' separator
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}

	return pattern, nil
}

// parseGraphGraphPattern parses a GRAPH <iri> { ... } or GRAPH ?var { ... } pattern
func (p *Parser) parseGraphGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()

	// Parse graph name (IRI or variable)
	graphTerm := &GraphTerm{}

	if p.peek() == '?' {
		// Variable
		varName, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		graphTerm.Variable = varName
	} else if p.peek() == '<' {
		// IRI
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		graphTerm.IRI = rdf.NewNamedNode(iri)
	} else {
		return nil, fmt.Errorf("expected IRI or variable after GRAPH")
	}

	// Parse the nested graph pattern
	nestedPattern, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}

	// Create a GRAPH pattern
	graphPattern := &GraphPattern{
		Type:     GraphPatternTypeGraph,
		Graph:    graphTerm,
		Patterns: nestedPattern.Patterns,
		Filters:  nestedPattern.Filters,
		Binds:    nestedPattern.Binds,
		Children: nestedPattern.Children,
		Elements: nestedPattern.Elements,
	}

	return graphPattern, nil
}

// parseTriplePattern parses a single triple pattern
func (p *Parser) parseTriplePattern() (*TriplePattern, error) {
	p.skipWhitespace()

	subject, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject: %w", err)
	}

	p.skipWhitespace()
	predicate, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("failed to parse predicate: %w", err)
	}

	// A fixed predicate immediately followed by `+` or `*` is a property
	// path of one repeated step (spec.md §4.3's TransitivePath operator);
	// the general property-path algebra (sequence, alternation, inverse,
	// nesting) is out of scope here.
	pathPlus, pathStar := false, false
	if !predicate.IsVariable() {
		switch p.peek() {
		case '+':
			p.advance()
			pathPlus = true
		case '*':
			p.advance()
			pathStar = true
		}
	}

	p.skipWhitespace()
	object, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("failed to parse object: %w", err)
	}

	return &TriplePattern{
		Subject:   *subject,
		Predicate: *predicate,
		Object:    *object,
		PathPlus:  pathPlus,
		PathStar:  pathStar,
	}, nil
}

// parseTriplePatterns parses triple patterns with property list shorthand (semicolon and comma)
// Syntax:
//
//	?s ?p1 ?o1 ; ?p2 ?o2 ; ?p3 ?o3 .  (semicolon repeats subject)
//	?s ?p ?o1 , ?o2 , ?o3 .           (comma repeats subject and predicate)
func (p *Parser) parseTriplePatterns() ([]*TriplePattern, error) {
	var triples []*TriplePattern

	// Parse first triple
	firstTriple, err := p.parseTriplePattern()
	if err != nil {
		return nil, err
	}
	triples = append(triples, firstTriple)

	// Handle property list shorthand
	for {
		p.skipWhitespace()
		ch := p.peek()

		if ch == ',' {
			// Comma: same subject and predicate, new object
			p.advance() // skip ','
			p.skipWhitespace()

			object, err := p.parseTermOrVariable()
			if err != nil {
				return nil, fmt.Errorf("failed to parse object after comma: %w", err)
			}

			triples = append(triples, &TriplePattern{
				Subject:   firstTriple.Subject,
				Predicate: firstTriple.Predicate,
				Object:    *object,
			})

		} else if ch == ';' {
			// Semicolon: same subject, new predicate and object
			p.advance() // skip ';'
			p.skipWhitespace()

			// Check for end of pattern (semicolon can be trailing)
			if p.peek() == '.' || p.peek() == '}' {
				break
			}

			predicate, err := p.parseTermOrVariable()
			if err != nil {
				return nil, fmt.Errorf("failed to parse predicate after semicolon: %w", err)
			}

			p.skipWhitespace()
			object, err := p.parseTermOrVariable()
			if err != nil {
				return nil, fmt.Errorf("failed to parse object after semicolon: %w", err)
			}

			triple := &TriplePattern{
				Subject:   firstTriple.Subject,
				Predicate: *predicate,
				Object:    *object,
			}
			triples = append(triples, triple)

			// Update firstTriple to allow comma after this predicate-object pair
			firstTriple = triple

		} else {
			// No more comma or semicolon, done
			break
		}
	}

	return triples, nil
}

// parseTermOrVariable parses either an RDF term or a variable
func (p *Parser) parseTermOrVariable() (*TermOrVariable, error) {
	p.skipWhitespace()

	ch := p.peek()

	// Variable
	if ch == '?' || ch == '$' {
		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Variable: variable}, nil
	}

	// IRI (named node)
	if ch == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	}

	// Literal (string)
	if ch == '"' || ch == '\'' {
		literal, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	// Blank node
	if ch == '_' {
		blankNode, err := p.parseBlankNode()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: blankNode}, nil
	}

	// Numeric literal
	if ch >= '0' && ch <= '9' || ch == '-' || ch == '+' {
		literal, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	// Keyword 'a' (shorthand for rdf:type)
	if ch == 'a' {
		// Check if it's just 'a' by itself (not part of a prefixed name)
		if p.pos+1 >= p.length || !((p.input[p.pos+1] >= 'a' && p.input[p.pos+1] <= 'z') ||
			(p.input[p.pos+1] >= 'A' && p.input[p.pos+1] <= 'Z') ||
			(p.input[p.pos+1] >= '0' && p.input[p.pos+1] <= '9') ||
			p.input[p.pos+1] == '_' || p.input[p.pos+1] == '-' || p.input[p.pos+1] == ':') {
			p.advance() // consume 'a'
			return &TermOrVariable{Term: rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
		}
	}

	// Prefixed name (like :foo or prefix:foo)
	if ch == ':' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
		prefixedName, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(prefixedName)}, nil
	}

	return nil, fmt.Errorf("unexpected character: %c", ch)
}

// parseVariable parses a SPARQL variable
func (p *Parser) parseVariable() (*Variable, error) {
	if p.peek() != '?' && p.peek() != '$' {
		return nil, fmt.Errorf("expected variable starting with ? or $")
	}
	p.advance() // consume ? or $

	name := p.readWhile(func(ch byte) bool {
		return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_'
	})

	if name == "" {
		return nil, fmt.Errorf("invalid variable name")
	}

	return &Variable{Name: name}, nil
}

// parseIRI parses an IRI enclosed in < >
func (p *Parser) parseIRI() (string, error) {
	if p.peek() != '<' {
		return "", fmt.Errorf("expected '<' to start IRI")
	}
	p.advance()

	iri := p.readWhile(func(ch byte) bool {
		return ch != '>'
	})

	if p.peek() != '>' {
		return "", fmt.Errorf("expected '>' to end IRI")
	}
	p.advance()

	return iri, nil
}

// parseStringLiteral parses a string literal (supports single and triple-quoted)
func (p *Parser) parseStringLiteral() (*rdf.Literal, error) {
	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return nil, fmt.Errorf("expected quote to start string literal")
	}

	// Check for triple-quoted string
	if p.pos+2 < len(p.input) && p.input[p.pos+1] == quote && p.input[p.pos+2] == quote {
		// Triple-quoted string
		p.advance() // first quote
		p.advance() // second quote
		p.advance() // third quote

		// Read until we find three consecutive quotes
		var value strings.Builder
		for p.pos < len(p.input) {
			if p.pos+2 < len(p.input) &&
				p.input[p.pos] == quote &&
				p.input[p.pos+1] == quote &&
				p.input[p.pos+2] == quote {
				// Found closing triple quote
				p.advance()
				p.advance()
				p.advance()
				return rdf.NewLiteral(value.String()), nil
			}
			value.WriteByte(p.input[p.pos])
			p.advance()
		}
		return nil, fmt.Errorf("unclosed triple-quoted string")
	}

	// Single-quoted string
	p.advance()

	value := p.readWhile(func(ch byte) bool {
		return ch != quote
	})

	if p.peek() != quote {
		return nil, fmt.Errorf("expected quote to end string literal")
	}
	p.advance()

	return rdf.NewLiteral(value), nil
}

// parseBlankNode parses a blank node
func (p *Parser) parseBlankNode() (*rdf.BlankNode, error) {
	if p.peek() != '_' {
		return nil, fmt.Errorf("expected '_' to start blank node")
	}
	p.advance()

	if p.peek() != ':' {
		return nil, fmt.Errorf("expected ':' after '_' in blank node")
	}
	p.advance()

	id := p.readWhile(func(ch byte) bool {
		return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_'
	})

	return rdf.NewBlankNode(id), nil
}

// parseNumericLiteral parses a numeric literal
func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	numStr := p.readWhile(func(ch byte) bool {
		return (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' || ch == '+' || ch == 'e' || ch == 'E'
	})

	// Try to parse as integer
	if !strings.Contains(numStr, ".") && !strings.Contains(numStr, "e") && !strings.Contains(numStr, "E") {
		if _, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return rdf.NewLiteralWithDatatype(numStr, rdf.XSDInteger), nil
		}
	}

	// Parse as double
	return rdf.NewLiteralWithDatatype(numStr, rdf.XSDDouble), nil
}

// parseFilter parses a FILTER expression
func (p *Parser) parseFilter() (*Filter, error) {
	// EXISTS / NOT EXISTS patterns are parsed and dropped (an empty Filter
	// is returned); any other expression is parsed into an expression tree
	p.skipWhitespace()

	// Check for EXISTS or NOT EXISTS (without parentheses around the keyword)
	if p.matchKeyword("EXISTS") {
		// FILTER EXISTS { pattern }
		_, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		return &Filter{}, nil
	}

	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		if p.matchKeyword("EXISTS") {
			// FILTER NOT EXISTS { pattern }
			_, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			return &Filter{}, nil
		}
		// If not EXISTS, fall through to normal expression parsing
	}

	// Parse the expression
	// SPARQL allows both FILTER (expr) and FILTER funcCall(...)
	// If there's a '(', it's FILTER (expr) and we need to consume the outer parens
	// Otherwise, the expression itself (like a function call) provides delimiters
	needsOuterParens := p.peek() == '('
	if needsOuterParens {
		p.advance() // skip '('
	}

	expr, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing FILTER expression: %w", err)
	}

	if needsOuterParens {
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected ')' after FILTER expression")
		}
		p.advance() // skip ')'
	}

	return &Filter{Expression: expr}, nil
}

// parseBind parses a BIND expression: BIND(<expression> AS ?variable)
func (p *Parser) parseBind() (*Bind, error) {
	p.skipWhitespace()

	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after BIND")
	}
	p.advance() // skip '('

	// Parse the expression
	expr, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing BIND expression: %w", err)
	}

	p.skipWhitespace()

	// Expect 'AS' keyword
	if !p.matchKeyword("AS") {
		return nil, fmt.Errorf("expected AS keyword in BIND expression")
	}

	p.skipWhitespace()

	// Parse variable
	variable, err := p.parseVariable()
	if err != nil {
		return nil, fmt.Errorf("expected variable after AS in BIND: %w", err)
	}

	p.skipWhitespace()

	// Expect closing parenthesis
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' to close BIND expression")
	}
	p.advance() // skip ')'

	return &Bind{Expression: expr, Variable: variable}, nil
}

// parseGroupBy parses GROUP BY clause
func (p *Parser) parseGroupBy() ([]*GroupCondition, error) {
	var conditions []*GroupCondition

	for {
		p.skipWhitespace()

		// Check for end of GROUP BY clause
		ch := p.peek()
		if ch != '?' && ch != '$' && ch != '(' {
			break
		}

		// Parse expression or variable
		if ch == '(' {
			// GROUP BY (expression AS ?var) or GROUP BY (expression)
			p.advance() // skip '('

			// Skip to AS or closing paren
			depth := 1
			for p.pos < p.length && depth > 0 {
				if p.peek() == '(' {
					depth++
					p.advance()
				} else if p.peek() == ')' {
					depth--
					if depth > 0 {
						p.advance()
					}
				} else if depth == 1 && p.matchKeyword("AS") {
					// Variable after AS
					p.skipWhitespace()
					if p.peek() == '?' || p.peek() == '$' {
						_, err := p.parseVariable()
						if err != nil {
							return nil, err
						}
					}
					p.skipWhitespace()
					if p.peek() == ')' {
						p.advance()
						break
					}
				} else {
					p.advance()
				}
			}

			conditions = append(conditions, &GroupCondition{})
		} else {
			// Simple variable
			variable, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{Variable: variable})
		}

		p.skipWhitespace()
	}

	return conditions, nil
}

// parseHaving parses HAVING clause
func (p *Parser) parseHaving() ([]*Filter, error) {
	var filters []*Filter

	for {
		p.skipWhitespace()

		// Check if we're at the end of HAVING
		if p.peek() != '(' {
			// Try to match EXISTS or NOT
			savedPos := p.pos
			if !p.matchKeyword("EXISTS") {
				p.pos = savedPos
				if !p.matchKeyword("NOT") {
					p.pos = savedPos
					break
				}
				p.pos = savedPos
			} else {
				p.pos = savedPos
			}
		}

		filter, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)

		p.skipWhitespace()
	}

	if len(filters) == 0 {
		return nil, fmt.Errorf("expected at least one condition in HAVING")
	}

	return filters, nil
}

// parseOrderBy parses ORDER BY clause
func (p *Parser) parseOrderBy() ([]*OrderCondition, error) {
	// Simplified implementation
	var conditions []*OrderCondition

	for {
		p.skipWhitespace()

		ascending := true
		if p.matchKeyword("DESC") {
			ascending = false
		} else if p.matchKeyword("ASC") {
			ascending = true
		}

		p.skipWhitespace()
		if p.peek() != '?' && p.peek() != '$' {
			break
		}

		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}

		conditions = append(conditions, &OrderCondition{
			Expression: &VariableExpression{Variable: variable},
			Ascending:  ascending,
		})

		// Check if there are more conditions; a following LIMIT/OFFSET is
		// left unconsumed for parseSelect
		p.skipWhitespace()
		if p.pos < p.length {
			continue
		}
		break
	}

	return conditions, nil
}

// parseInteger parses an integer
func (p *Parser) parseInteger() (int, error) {
	p.skipWhitespace()

	numStr := p.readWhile(func(ch byte) bool {
		return ch >= '0' && ch <= '9'
	})

	if numStr == "" {
		return 0, fmt.Errorf("expected integer")
	}

	return strconv.Atoi(numStr)
}

// Helper methods

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) advance() {
	if p.pos < p.length {
		p.pos++
	}
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]

		// Skip whitespace characters
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			p.pos++
			continue
		}

		// Skip comments (from # to end of line)
		if ch == '#' {
			p.pos++
			// Skip until newline
			for p.pos < p.length && p.input[p.pos] != '\n' && p.input[p.pos] != '\r' {
				p.pos++
			}
			continue
		}

		break
	}
}

func (p *Parser) readWhile(predicate func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && predicate(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *Parser) matchKeyword(keyword string) bool {
	p.skipWhitespace()

	// Case-insensitive match
	remaining := p.input[p.pos:]
	pattern := `(?i)^` + regexp.QuoteMeta(keyword) + `\b`
	matched, _ := regexp.MatchString(pattern, remaining)

	if matched {
		p.pos += len(keyword)
		return true
	}
	return false
}

// skipPrefix parses and stores a PREFIX declaration (prefix: <iri>)
func (p *Parser) skipPrefix() error {
	p.skipWhitespace()

	// Read prefix name (can be empty for default prefix)
	prefixStart := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		p.advance()
	}
	prefix := p.input[prefixStart:p.pos]

	if p.pos >= p.length {
		return fmt.Errorf("expected ':' in PREFIX declaration")
	}
	p.advance() // skip ':'

	p.skipWhitespace()

	// Parse IRI <...>
	if p.peek() != '<' {
		return fmt.Errorf("expected '<' to start IRI in PREFIX declaration")
	}
	p.advance() // skip '<'

	iriStart := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		p.advance()
	}
	iri := p.input[iriStart:p.pos]

	if p.pos >= p.length {
		return fmt.Errorf("expected '>' to end IRI in PREFIX declaration")
	}
	p.advance() // skip '>'

	// Resolve relative IRI against BASE if needed
	resolvedIRI := p.resolveIRI(iri)

	// Store the prefix mapping
	p.prefixes[prefix] = resolvedIRI

	return nil
}

// skipBase parses and stores a BASE declaration (<iri>)
func (p *Parser) skipBase() error {
	p.skipWhitespace()

	// Parse IRI <...>
	if p.peek() != '<' {
		return fmt.Errorf("expected '<' to start IRI in BASE declaration")
	}
	p.advance() // skip '<'

	// Read the IRI
	iriStart := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		p.advance()
	}
	iri := p.input[iriStart:p.pos]

	if p.pos >= p.length {
		return fmt.Errorf("expected '>' to end IRI in BASE declaration")
	}
	p.advance() // skip '>'

	// Store the base URI
	p.baseURI = iri

	return nil
}

// skipSelectExpression skips a SELECT expression: (expression AS ?variable)
func (p *Parser) skipSelectExpression() error {
	p.skipWhitespace()

	if p.peek() != '(' {
		return fmt.Errorf("expected '(' to start SELECT expression")
	}
	p.advance() // skip '('

	// Skip until we find 'AS' keyword at depth 1
	depth := 1
	for p.pos < p.length {
		if p.peek() == '(' {
			depth++
			p.advance()
		} else if p.peek() == ')' {
			depth--
			if depth == 0 {
				p.advance() // skip closing ')'
				break
			}
			p.advance()
		} else if depth == 1 && p.matchKeyword("AS") {
			// Found AS - skip to the variable
			p.skipWhitespace()
			// Skip the variable
			if p.peek() == '?' || p.peek() == '$' {
				p.advance() // skip ? or $
				// Skip variable name
				for p.pos < p.length {
					ch := p.peek()
					if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
						(ch >= '0' && ch <= '9') || ch == '_') {
						break
					}
					p.advance()
				}
			}
			p.skipWhitespace()
			// Expect closing ')'
			if p.peek() == ')' {
				p.advance()
				break
			}
		} else {
			p.advance()
		}
	}

	return nil
}

// parsePrefixedName parses a prefixed name (like :foo or prefix:foo) and expands it to a full IRI
func (p *Parser) parsePrefixedName() (string, error) {
	// Read prefix part (everything before ':')
	prefixStart := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		ch := p.input[p.pos]
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			break
		}
		p.advance()
	}
	prefix := p.input[prefixStart:p.pos]

	// Expect ':'
	if p.peek() != ':' {
		return "", fmt.Errorf("expected ':' in prefixed name")
	}
	p.advance() // skip ':'

	// Read local part (everything after ':')
	localStart := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			break
		}
		p.advance()
	}
	local := p.input[localStart:p.pos]

	// Look up prefix in prefix map
	baseIRI, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("undefined prefix: '%s'", prefix)
	}

	// Expand to full IRI
	return baseIRI + local, nil
}

// Expression parsing with operator precedence
// Grammar:
// Expression → LogicalOrExpression
// LogicalOrExpression → LogicalAndExpression ( '||' LogicalAndExpression )*
// LogicalAndExpression → ComparisonExpression ( '&&' ComparisonExpression )*
// ComparisonExpression → AdditiveExpression ( ('=' | '!=' | '<' | '<=' | '>' | '>=') AdditiveExpression )?
// AdditiveExpression → MultiplicativeExpression ( ('+' | '-') MultiplicativeExpression )*
// MultiplicativeExpression → UnaryExpression ( ('*' | '/') UnaryExpression )*
// UnaryExpression → ('!' | '-' | '+')? PrimaryExpression
// PrimaryExpression → Variable | Literal | FunctionCall | '(' Expression ')'

// parseExpression parses a SPARQL expression (entry point)
func (p *Parser) parseExpression() (Expression, error) {
	return p.parseLogicalOrExpression()
}

// parseLogicalOrExpression parses logical OR (lowest precedence)
func (p *Parser) parseLogicalOrExpression() (Expression, error) {
	left, err := p.parseLogicalAndExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		if p.match("||") {
			right, err := p.parseLogicalAndExpression()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{
				Left:     left,
				Operator: OpOr,
				Right:    right,
			}
		} else {
			break
		}
	}

	return left, nil
}

// parseLogicalAndExpression parses logical AND
func (p *Parser) parseLogicalAndExpression() (Expression, error) {
	left, err := p.parseComparisonExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		if p.match("&&") {
			right, err := p.parseComparisonExpression()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{
				Left:     left,
				Operator: OpAnd,
				Right:    right,
			}
		} else {
			break
		}
	}

	return left, nil
}

// parseComparisonExpression parses comparison operators and IN/NOT IN
func (p *Parser) parseComparisonExpression() (Expression, error) {
	left, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()

	// Check for IN or NOT IN operators
	savedPos := p.pos
	notIn := false
	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		if p.matchKeyword("IN") {
			notIn = true
		} else {
			// NOT not followed by IN, restore and try regular operators
			p.pos = savedPos
		}
	} else if p.matchKeyword("IN") {
		notIn = false
	} else {
		// Not IN operator, check for comparison operators
		p.pos = savedPos
		var op Operator
		if p.match("<=") {
			op = OpLessThanOrEqual
		} else if p.match(">=") {
			op = OpGreaterThanOrEqual
		} else if p.match("!=") {
			op = OpNotEqual
		} else if p.match("=") {
			op = OpEqual
		} else if p.match("<") {
			op = OpLessThan
		} else if p.match(">") {
			op = OpGreaterThan
		} else {
			// No comparison operator
			return left, nil
		}

		right, err := p.parseAdditiveExpression()
		if err != nil {
			return nil, err
		}

		return &BinaryExpression{
			Left:     left,
			Operator: op,
			Right:    right,
		}, nil
	}

	// Parse IN or NOT IN
	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after IN/NOT IN")
	}
	p.advance() // skip '('

	// Parse value list
	var values []Expression
	p.skipWhitespace()

	// Check for empty list
	if p.peek() != ')' {
		for {
			expr, err := p.parseAdditiveExpression()
			if err != nil {
				return nil, fmt.Errorf("failed to parse IN value: %w", err)
			}
			values = append(values, expr)

			p.skipWhitespace()
			if p.peek() == ',' {
				p.advance() // skip ','
				p.skipWhitespace()
			} else {
				break
			}
		}
	}

	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' after IN value list")
	}
	p.advance() // skip ')'

	return &InExpression{
		Not:        notIn,
		Expression: left,
		Values:     values,
	}, nil
}

// parseAdditiveExpression parses addition and subtraction
func (p *Parser) parseAdditiveExpression() (Expression, error) {
	left, err := p.parseMultiplicativeExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		var op Operator
		if p.match("+") {
			op = OpAdd
		} else if p.match("-") {
			op = OpSubtract
		} else {
			break
		}

		right, err := p.parseMultiplicativeExpression()
		if err != nil {
			return nil, err
		}

		left = &BinaryExpression{
			Left:     left,
			Operator: op,
			Right:    right,
		}
	}

	return left, nil
}

// parseMultiplicativeExpression parses multiplication and division
func (p *Parser) parseMultiplicativeExpression() (Expression, error) {
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		var op Operator
		if p.match("*") {
			op = OpMultiply
		} else if p.match("/") {
			op = OpDivide
		} else {
			break
		}

		right, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}

		left = &BinaryExpression{
			Left:     left,
			Operator: op,
			Right:    right,
		}
	}

	return left, nil
}

// parseUnaryExpression parses unary operators
func (p *Parser) parseUnaryExpression() (Expression, error) {
	p.skipWhitespace()

	// Check for unary operators
	if p.match("!") {
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{
			Operator: OpNot,
			Operand:  operand,
		}, nil
	}

	if p.match("+") {
		// Unary plus is essentially a no-op, just parse the operand
		return p.parseUnaryExpression()
	}

	if p.match("-") {
		// Unary minus
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		// Represent as 0 - operand
		return &BinaryExpression{
			Left:     &LiteralExpression{Literal: rdf.NewIntegerLiteral(0)},
			Operator: OpSubtract,
			Right:    operand,
		}, nil
	}

	return p.parsePrimaryExpression()
}

// parsePrimaryExpression parses primary expressions (variables, literals, functions, parentheses)
func (p *Parser) parsePrimaryExpression() (Expression, error) {
	p.skipWhitespace()

	// Check for boolean literals (true/false)
	savedPos := p.pos
	if p.matchKeyword("TRUE") {
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(true)}, nil
	}
	p.pos = savedPos
	if p.matchKeyword("FALSE") {
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(false)}, nil
	}
	p.pos = savedPos

	// Check for EXISTS or NOT EXISTS
	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		if p.matchKeyword("EXISTS") {
			p.skipWhitespace()
			pattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, fmt.Errorf("failed to parse graph pattern in NOT EXISTS: %w", err)
			}
			return &ExistsExpression{Not: true, Pattern: *pattern}, nil
		}
		// Not followed by EXISTS, restore position
		p.pos = savedPos
	} else if p.matchKeyword("EXISTS") {
		p.skipWhitespace()
		pattern, err := p.parseGraphPattern()
		if err != nil {
			return nil, fmt.Errorf("failed to parse graph pattern in EXISTS: %w", err)
		}
		return &ExistsExpression{Not: false, Pattern: *pattern}, nil
	}

	// Check for parenthesized expression
	if p.peek() == '(' {
		p.advance() // skip '('
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected ')' after expression")
		}
		p.advance() // skip ')'
		return expr, nil
	}

	// Check for variable
	if p.peek() == '?' || p.peek() == '$' {
		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: variable}, nil
	}

	// Check for function call (a letter at start)
	ch := p.peek()
	if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
		// Try to parse as function call
		savedPos := p.pos
		_ = p.readWhile(func(c byte) bool {
			return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_'
		})

		p.skipWhitespace()
		if p.peek() == '(' {
			// It's a function call
			p.pos = savedPos // restore position
			return p.parseFunctionCall()
		}

		// Not a function call, restore and try as literal/keyword
		p.pos = savedPos
	}

	// Check for literals - parse using parseTermOrVariable
	termOrVar, err := p.parseTermOrVariable()
	if err != nil {
		return nil, fmt.Errorf("expected expression: %w", err)
	}

	// If it's a variable, we shouldn't get here (handled above)
	// If it's a term, wrap it in a LiteralExpression
	if termOrVar.Term != nil {
		return &LiteralExpression{Literal: termOrVar.Term}, nil
	}

	// If we got a variable here, it's already been handled above, but just in case
	if termOrVar.Variable != nil {
		return &VariableExpression{Variable: termOrVar.Variable}, nil
	}

	return nil, fmt.Errorf("failed to parse expression term")
}

// parseFunctionCall parses a function call expression
func (p *Parser) parseFunctionCall() (Expression, error) {
	p.skipWhitespace()

	// Read function name (can be identifier or prefixed name like xsd:string)
	funcName := p.readWhile(func(c byte) bool {
		return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == ':'
	})

	if funcName == "" {
		return nil, fmt.Errorf("expected function name")
	}

	// Expand prefixed name to full IRI if it contains a colon
	if strings.Contains(funcName, ":") {
		// This is a prefixed name - expand it using current prefixes
		parts := strings.SplitN(funcName, ":", 2)
		if len(parts) == 2 {
			prefix := parts[0]
			localName := parts[1]
			if ns, ok := p.prefixes[prefix]; ok {
				funcName = ns + localName
			}
			// If prefix not found, keep as-is (may be built-in like xsd:string)
		}
	}

	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after function name")
	}
	p.advance() // skip '('

	// Parse arguments
	var args []Expression
	p.skipWhitespace()

	// Check for empty argument list
	if p.peek() == ')' {
		p.advance() // skip ')'
		return &FunctionCallExpression{
			Function:  funcName,
			Arguments: args,
		}, nil
	}

	// Parse first argument
	for {
		// Special case for COUNT(*) and similar
		if funcName == "COUNT" && p.peek() == '*' {
			p.advance()
			// Add a special marker for COUNT(*)
			args = append(args, &VariableExpression{Variable: &Variable{Name: "*"}})
		} else {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, fmt.Errorf("error parsing function argument: %w", err)
			}
			args = append(args, arg)
		}

		p.skipWhitespace()
		if p.peek() == ',' {
			p.advance() // skip ','
			p.skipWhitespace()
			continue
		}
		break
	}

	p.skipWhitespace()
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' after function arguments")
	}
	p.advance() // skip ')'

	return &FunctionCallExpression{
		Function:  funcName,
		Arguments: args,
	}, nil
}

// match checks if the next characters match the given string and advances if they do
func (p *Parser) match(s string) bool {
	if p.pos+len(s) > p.length {
		return false
	}

	for i := 0; i < len(s); i++ {
		if p.input[p.pos+i] != s[i] {
			return false
		}
	}

	p.pos += len(s)
	return true
}

// resolveIRI resolves a potentially relative IRI against the BASE URI
func (p *Parser) resolveIRI(iri string) string {
	// If no BASE is set or IRI is absolute, return as-is
	if p.baseURI == "" || isAbsoluteIRI(iri) {
		return iri
	}

	// Handle fragment-only IRIs like "#x"
	if strings.HasPrefix(iri, "#") {
		return p.baseURI + iri
	}

	// Simple relative IRI resolution
	// This is a simplified version - full RFC 3986 resolution is complex
	return p.baseURI + iri
}

// isAbsoluteIRI checks if an IRI is absolute (has a scheme)
func isAbsoluteIRI(iri string) bool {
	// Check for scheme: "scheme:"
	colonIdx := strings.Index(iri, ":")
	if colonIdx <= 0 {
		return false
	}
	// Check that everything before colon is valid scheme chars
	for i := 0; i < colonIdx; i++ {
		c := iri[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9' && i > 0) || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}

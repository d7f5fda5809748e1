package sulpher

import (
	"fmt"
	"strconv"
	"strings"

	"rserv/domain/document"
)

// ParseError reports where parsing failed.
type ParseError struct {
	Message string
	Near    string
}

func (e *ParseError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("invalid Sulpher query: %s", e.Message)
	}
	return fmt.Sprintf("invalid Sulpher query: %s near %q", e.Message, e.Near)
}

func parseErr(message, near string) error {
	if len(near) > 40 {
		near = near[:40]
	}
	return &ParseError{Message: message, Near: near}
}

// Parse turns a query string into an execution plan.
//
//	query := [ ("BFS"|"DFS") ] "MATCH" pattern [ "WHERE" conds ] "RETURN" items
//	pattern := node { "-[" rel "]->" node }
//	node := "(" ident [":" type] [ "{" k: v, ... "}" ] ")"
func Parse(query string) (*Plan, error) {
	rest := strings.TrimSpace(query)
	plan := &Plan{Algorithm: AlgorithmBFS}

	switch {
	case strings.HasPrefix(rest, "BFS "):
		rest = strings.TrimSpace(rest[4:])
	case strings.HasPrefix(rest, "DFS "):
		plan.Algorithm = AlgorithmDFS
		rest = strings.TrimSpace(rest[4:])
	}

	if !strings.HasPrefix(rest, "MATCH") {
		return nil, parseErr("expected MATCH", rest)
	}
	rest = strings.TrimSpace(rest[len("MATCH"):])

	// Split off the RETURN clause first; it is mandatory and terminal.
	patternAndWhere, returnClause, ok := cutKeyword(rest, "RETURN")
	if !ok {
		return nil, parseErr("expected RETURN clause", rest)
	}

	patternPart, wherePart, hasWhere := cutKeyword(patternAndWhere, "WHERE")

	path, err := parsePattern(strings.TrimSpace(patternPart))
	if err != nil {
		return nil, err
	}
	plan.Path = path

	if hasWhere {
		conds, err := parseWhere(strings.TrimSpace(wherePart))
		if err != nil {
			return nil, err
		}
		plan.Where = conds
	}

	items, err := parseReturn(strings.TrimSpace(returnClause))
	if err != nil {
		return nil, err
	}
	plan.Return = items

	return plan, nil
}

// cutKeyword splits on the first occurrence of a space-delimited keyword.
func cutKeyword(s, keyword string) (string, string, bool) {
	idx := strings.Index(s, " "+keyword+" ")
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+len(keyword)+2:], true
}

func parsePattern(pattern string) ([]Step, error) {
	if pattern == "" {
		return nil, parseErr("empty match pattern", "")
	}

	var steps []Step
	var inbound RelPattern // relationship leading into the next node
	rest := pattern
	for {
		if !strings.HasPrefix(rest, "(") {
			return nil, parseErr("expected node pattern", rest)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, parseErr("unterminated node pattern", rest)
		}
		node, err := parseNode(rest[1:end])
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Node: node, Rel: inbound})

		rest = strings.TrimSpace(rest[end+1:])
		if rest == "" {
			break
		}
		if !strings.HasPrefix(rest, "-[") {
			return nil, parseErr("expected -[rel]-> between nodes", rest)
		}
		relEnd := strings.Index(rest, "]->")
		if relEnd < 0 {
			return nil, parseErr("unterminated relationship pattern", rest)
		}
		inbound, err = parseRel(rest[2:relEnd])
		if err != nil {
			return nil, err
		}
		rest = strings.TrimSpace(rest[relEnd+3:])
		if rest == "" {
			return nil, parseErr("pattern ends with a dangling relationship", pattern)
		}
	}

	return steps, nil
}

func parseNode(body string) (NodePattern, error) {
	node := NodePattern{Props: map[string]document.Value{}}

	head, props, err := splitProps(body)
	if err != nil {
		return node, err
	}
	node.Props = props

	head = strings.TrimSpace(head)
	name, typeName, hasType := strings.Cut(head, ":")
	node.Var = strings.TrimSpace(name)
	if hasType {
		node.Type = strings.TrimSpace(typeName)
	}
	if node.Var == "" && node.Type == "" && len(node.Props) == 0 {
		return node, parseErr("empty node pattern", body)
	}
	return node, nil
}

func parseRel(body string) (RelPattern, error) {
	rel := RelPattern{Props: map[string]document.Value{}}

	head, props, err := splitProps(body)
	if err != nil {
		return rel, err
	}
	rel.Props = props

	head = strings.TrimSpace(head)
	if head == "" {
		return rel, nil
	}
	name, typeName, hasType := strings.Cut(head, ":")
	if hasType {
		rel.Type = strings.TrimSpace(typeName)
	} else {
		// A bare token constrains the edge label.
		rel.Type = strings.TrimSpace(name)
	}
	return rel, nil
}

// splitProps separates "head {k: v, ...}" into head and parsed properties.
func splitProps(body string) (string, map[string]document.Value, error) {
	props := map[string]document.Value{}
	open := strings.IndexByte(body, '{')
	if open < 0 {
		return body, props, nil
	}
	closing := strings.IndexByte(body, '}')
	if closing < open {
		return "", nil, parseErr("unterminated property map", body)
	}
	for _, pair := range strings.Split(body[open+1:closing], ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return "", nil, parseErr("expected key: value", pair)
		}
		props[strings.TrimSpace(key)] = parseLiteral(strings.TrimSpace(raw))
	}
	return body[:open], props, nil
}

func parseWhere(clause string) ([]Condition, error) {
	var conds []Condition
	for _, raw := range strings.Split(clause, " AND ") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cond, err := parseCondition(raw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return nil, parseErr("empty WHERE clause", clause)
	}
	return conds, nil
}

var operators = []string{"<=", ">=", "!=", "=", "<", ">"}

func parseCondition(raw string) (Condition, error) {
	for _, op := range operators {
		idx := strings.Index(raw, op)
		if idx < 0 {
			continue
		}
		lhs := strings.TrimSpace(raw[:idx])
		rhs := strings.TrimSpace(raw[idx+len(op):])
		variable, property, ok := strings.Cut(lhs, ".")
		if !ok || variable == "" || property == "" {
			return Condition{}, parseErr("expected var.prop on the left of a condition", raw)
		}
		if rhs == "" {
			return Condition{}, parseErr("missing literal on the right of a condition", raw)
		}
		return Condition{
			Variable: strings.TrimSpace(variable),
			Property: strings.TrimSpace(property),
			Operator: op,
			Value:    parseLiteral(rhs),
		}, nil
	}
	return Condition{}, parseErr("no comparison operator in condition", raw)
}

var aggregates = []string{"COUNT", "SUM", "AVG", "MIN", "MAX"}

func parseReturn(clause string) ([]ReturnItem, error) {
	var items []ReturnItem
	for _, raw := range strings.Split(clause, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		item, err := parseReturnItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, parseErr("empty RETURN clause", clause)
	}
	return items, nil
}

func parseReturnItem(raw string) (ReturnItem, error) {
	item := ReturnItem{Text: raw}

	for _, agg := range aggregates {
		prefix := agg + "("
		if strings.HasPrefix(raw, prefix) && strings.HasSuffix(raw, ")") {
			item.Aggregate = agg
			arg := strings.TrimSpace(raw[len(prefix) : len(raw)-1])
			if arg == "" {
				return item, parseErr("empty aggregate argument", raw)
			}
			if variable, prop, ok := strings.Cut(arg, "."); ok {
				item.Var = strings.TrimSpace(variable)
				item.Prop = strings.TrimSpace(prop)
			} else {
				item.Var = arg
			}
			return item, nil
		}
	}

	if variable, prop, ok := strings.Cut(raw, "."); ok {
		item.Var = strings.TrimSpace(variable)
		item.Prop = strings.TrimSpace(prop)
		if item.Var == "" || item.Prop == "" {
			return item, parseErr("expected var.prop", raw)
		}
		return item, nil
	}

	item.Var = raw
	return item, nil
}

// parseLiteral follows the loose literal rules of the language: integer,
// float, boolean, otherwise a string with surrounding quotes stripped.
func parseLiteral(raw string) document.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return document.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return document.Float(f)
	}
	switch strings.ToLower(raw) {
	case "true":
		return document.Bool(true)
	case "false":
		return document.Bool(false)
	}
	return document.String(strings.Trim(raw, `"'`))
}

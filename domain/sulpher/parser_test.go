package sulpher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rserv/domain/document"
)

func TestParseMinimalQuery(t *testing.T) {
	plan, err := Parse("MATCH (n:person) RETURN n")
	require.NoError(t, err)

	assert.Equal(t, AlgorithmBFS, plan.Algorithm)
	require.Len(t, plan.Path, 1)
	assert.Equal(t, "n", plan.Path[0].Node.Var)
	assert.Equal(t, "person", plan.Path[0].Node.Type)
	assert.Empty(t, plan.Where)
	require.Len(t, plan.Return, 1)
	assert.Equal(t, "n", plan.Return[0].Var)
	assert.Empty(t, plan.Return[0].Aggregate)
}

func TestParseAlgorithmPrefix(t *testing.T) {
	plan, err := Parse("DFS MATCH (n) RETURN n")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmDFS, plan.Algorithm)

	plan, err = Parse("BFS MATCH (n) RETURN n")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmBFS, plan.Algorithm)
}

func TestParsePathWithRelationships(t *testing.T) {
	plan, err := Parse("MATCH (a:person)-[:knows]->(b:person)-[r]->(c) RETURN c")
	require.NoError(t, err)

	require.Len(t, plan.Path, 3)
	assert.Empty(t, plan.Path[0].Rel.Type)
	assert.Equal(t, "knows", plan.Path[1].Rel.Type)
	assert.Equal(t, "r", plan.Path[2].Rel.Type)
	assert.Equal(t, "c", plan.Path[2].Node.Var)
}

func TestParseNodeProperties(t *testing.T) {
	plan, err := Parse(`MATCH (n:person {name: "Ada", age: 36, active: true}) RETURN n`)
	require.NoError(t, err)

	props := plan.Path[0].Node.Props
	assert.True(t, document.Equals(props["name"], document.String("Ada")))
	assert.True(t, document.Equals(props["age"], document.Int(36)))
	assert.True(t, document.Equals(props["active"], document.Bool(true)))
}

func TestParseWhereConditions(t *testing.T) {
	plan, err := Parse(`MATCH (n:person) WHERE n.age >= 18 AND n.name != "Bob" RETURN n.name`)
	require.NoError(t, err)

	require.Len(t, plan.Where, 2)
	assert.Equal(t, "n", plan.Where[0].Variable)
	assert.Equal(t, "age", plan.Where[0].Property)
	assert.Equal(t, ">=", plan.Where[0].Operator)
	assert.True(t, document.Equals(plan.Where[0].Value, document.Int(18)))
	assert.Equal(t, "!=", plan.Where[1].Operator)
	assert.True(t, document.Equals(plan.Where[1].Value, document.String("Bob")))
}

func TestParseReturnItems(t *testing.T) {
	plan, err := Parse("MATCH (n:person) RETURN n.name, COUNT(n), AVG(n.age), n")
	require.NoError(t, err)

	require.Len(t, plan.Return, 4)
	assert.Equal(t, "name", plan.Return[0].Prop)
	assert.Equal(t, "COUNT", plan.Return[1].Aggregate)
	assert.Equal(t, "n", plan.Return[1].Var)
	assert.Equal(t, "AVG", plan.Return[2].Aggregate)
	assert.Equal(t, "age", plan.Return[2].Prop)
	assert.Equal(t, "n", plan.Return[3].Var)
	assert.Equal(t, "AVG(n.age)", plan.Return[2].Text)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no match":          "RETURN n",
		"no return":         "MATCH (n:person)",
		"unterminated node": "MATCH (n:person RETURN n",
		"dangling rel":      "MATCH (a)-[:knows]-> RETURN a",
		"bad condition":     "MATCH (n) WHERE n.age RETURN n",
		"bare where lhs":    "MATCH (n) WHERE age > 1 RETURN n",
	}
	for name, query := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(query)
			require.Error(t, err)
			var parseError *ParseError
			assert.ErrorAs(t, err, &parseError)
		})
	}
}

func TestParseLiteralForms(t *testing.T) {
	assert.True(t, document.Equals(parseLiteral("42"), document.Int(42)))
	assert.True(t, document.Equals(parseLiteral("4.5"), document.Float(4.5)))
	assert.True(t, document.Equals(parseLiteral("false"), document.Bool(false)))
	assert.True(t, document.Equals(parseLiteral(`"quoted"`), document.String("quoted")))
	assert.True(t, document.Equals(parseLiteral("bare"), document.String("bare")))
}

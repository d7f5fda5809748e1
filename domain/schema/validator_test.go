package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rserv/domain/document"
)

type fakeSource struct {
	files map[string]bool
	docs  map[string][]document.Document
}

func (f *fakeSource) FileExists(entity, name string) bool {
	return f.files[entity+"/"+name]
}

func (f *fakeSource) List(entity string) ([]document.Document, error) {
	return f.docs[entity], nil
}

func newValidator(t *testing.T, schemas map[string]string, source *fakeSource) *Validator {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "test")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for entity, body := range schemas {
		require.NoError(t, os.WriteFile(filepath.Join(dir, entity+".json"), []byte(body), 0o644))
	}
	registry, err := NewRegistry(root, "test", zap.NewNop())
	require.NoError(t, err)
	if source == nil {
		source = &fakeSource{}
	}
	return NewValidator(registry, source)
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	v := newValidator(t, map[string]string{
		"person": `{
			"name": {"type": "string", "max_length": 5},
			"age":  {"type": "integer", "min": 0, "max": 150}
		}`,
	}, nil)

	ok, errs := v.Validate("person", document.Document{
		"name": document.String("much too long"),
		"age":  document.Int(200),
	})
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{
		"Field name exceeds maximum length of 5",
		"Field age must be less than or equal to 150",
	}, errs)
}

func TestValidateRequiredDefaultsToTrue(t *testing.T) {
	v := newValidator(t, map[string]string{
		"person": `{
			"name": {"type": "string"},
			"bio":  {"type": "string", "required": false}
		}`,
	}, nil)

	ok, errs := v.Validate("person", document.Document{})
	assert.False(t, ok)
	assert.Equal(t, []string{"Missing required field: name"}, errs)

	ok, _ = v.Validate("person", document.Document{"name": document.String("Ada")})
	assert.True(t, ok)
}

func TestValidateTypeMessages(t *testing.T) {
	v := newValidator(t, map[string]string{
		"thing": `{
			"name":  {"type": "string", "required": false},
			"count": {"type": "integer", "required": false},
			"ratio": {"type": "float", "required": false},
			"done":  {"type": "boolean", "required": false},
			"when":  {"type": "datetime", "required": false},
			"day":   {"type": "date", "required": false},
			"blob":  {"type": "json", "required": false}
		}`,
	}, nil)

	cases := []struct {
		doc  document.Document
		want string
	}{
		{document.Document{"name": document.Int(1)}, "Field name must be a string"},
		{document.Document{"count": document.Float(1.5)}, "Field count must be an integer"},
		{document.Document{"ratio": document.String("x")}, "Field ratio must be a number"},
		{document.Document{"done": document.String("yes")}, "Field done must be a boolean"},
		{document.Document{"when": document.String("not a time")}, "Field when must be a valid ISO format datetime string"},
		{document.Document{"day": document.String("2024-13-01")}, "Field day must be a valid date string in YYYY-MM-DD format"},
		{document.Document{"blob": document.Int(1)}, "Field blob must be a valid JSON object or array"},
	}
	for _, tc := range cases {
		ok, errs := v.Validate("thing", tc.doc)
		assert.False(t, ok)
		assert.Equal(t, []string{tc.want}, errs)
	}

	ok, errs := v.Validate("thing", document.Document{
		"name":  document.String("x"),
		"count": document.Int(1),
		"ratio": document.Int(2), // integers satisfy float
		"done":  document.Bool(true),
		"when":  document.String("2024-06-01T12:30:00Z"),
		"day":   document.String("2024-06-01"),
		"blob":  document.Array(document.Int(1)),
	})
	assert.True(t, ok, errs)
}

func TestValidateRegexIsAnchored(t *testing.T) {
	v := newValidator(t, map[string]string{
		"person": `{"code": {"type": "string", "regex": "[A-Z]{3}"}}`,
	}, nil)

	ok, _ := v.Validate("person", document.Document{"code": document.String("ABC-extra")})
	assert.True(t, ok, "pattern matches at the start")

	ok, errs := v.Validate("person", document.Document{"code": document.String("xxABC")})
	assert.False(t, ok)
	assert.Equal(t, []string{"Field code does not match the required pattern: [A-Z]{3}"}, errs)
}

func TestValidateForeignKey(t *testing.T) {
	source := &fakeSource{files: map[string]bool{"person/7": true}}
	v := newValidator(t, map[string]string{
		"post": `{"author_id": {"type": "integer", "foreign_key": {"entity": "person", "field": "id"}}}`,
	}, source)

	ok, _ := v.Validate("post", document.Document{"author_id": document.Int(7)})
	assert.True(t, ok)

	ok, errs := v.Validate("post", document.Document{"author_id": document.Int(8)})
	assert.False(t, ok)
	assert.Equal(t, []string{"Foreign key constraint failed: person with id=8 does not exist"}, errs)
}

func TestValidateUniqueSkipsSelf(t *testing.T) {
	source := &fakeSource{docs: map[string][]document.Document{
		"person": {
			{"id": document.Int(1), "email": document.String("ada@example.com")},
		},
	}}
	v := newValidator(t, map[string]string{
		"person": `{"email": {"type": "string", "unique": true}}`,
	}, source)

	// Same value on the same id is an update, not a conflict.
	ok, _ := v.Validate("person", document.Document{
		"id":    document.Int(1),
		"email": document.String("ada@example.com"),
	})
	assert.True(t, ok)

	ok, errs := v.Validate("person", document.Document{
		"id":    document.Int(2),
		"email": document.String("ada@example.com"),
	})
	assert.False(t, ok)
	assert.Equal(t, []string{"Field email must be unique"}, errs)
}

func TestValidateUnknownEntityPasses(t *testing.T) {
	v := newValidator(t, nil, nil)
	ok, errs := v.Validate("anything", document.Document{"x": document.Int(1)})
	assert.True(t, ok)
	assert.Empty(t, errs)
}

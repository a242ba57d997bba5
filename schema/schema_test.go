package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer", "minimum": 0}
	},
	"required": ["name"]
}`

func TestCompileAndValidate(t *testing.T) {
	v, err := Compile([]byte(personSchema))
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.NoError(t, v.Validate(map[string]any{"name": "alice", "age": 30}))

	err = v.Validate(map[string]any{"age": -1})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCompileEmptySchemaAcceptsAll(t *testing.T) {
	v, err := Compile(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, v.Validate(map[string]any{"anything": true}))
}

func TestCompileInvalidSchema(t *testing.T) {
	_, err := Compile([]byte(`{"type": 42}`))
	assert.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	v, err := Compile([]byte(personSchema))
	require.NoError(t, err)

	assert.NoError(t, v.ValidateJSON([]byte(`{"name": "bob"}`)))
	assert.Error(t, v.ValidateJSON([]byte(`{"age": 5}`)))
	assert.Error(t, v.ValidateJSON([]byte(`not json`)))
}

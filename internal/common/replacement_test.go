package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestReplaceKeyReferences_Simple(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"github-token": "ghp_12345"}

	input := "token = {github-token}"
	expected := "token = ghp_12345"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_Multiple(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"key1": "val1",
		"key2": "val2",
		"key3": "val3",
	}

	input := "key1={key1}, key2={key2}, key3={key3}"
	expected := "key1=val1, key2=val2, key3=val3"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceKeyReferences_MissingKey(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"known-key": "value"}

	input := "token = {unknown-key}"

	// Missing keys are left unchanged
	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, input, result)
}

func TestReplaceKeyReferences_InvalidSyntax(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"jira-key": "value"}

	// Spaces and dots are not valid key characters, so these are not references
	inputs := []string{
		"token = {jira key}",
		"token = {jira.key}",
		"token = { jira-key }",
	}

	for _, input := range inputs {
		result := ReplaceKeyReferences(input, kvMap, logger)
		assert.Equal(t, input, result)
	}
}

func TestReplaceKeyReferences_EmptyInput(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	result := ReplaceKeyReferences("", kvMap, logger)
	assert.Equal(t, "", result)
}

func TestReplaceKeyReferences_MultipleOccurrences(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"trello-key": "abc"}

	input := "{trello-key} and {trello-key} again"
	expected := "abc and abc again"

	result := ReplaceKeyReferences(input, kvMap, logger)
	assert.Equal(t, expected, result)
}

func TestReplaceInMap_SimpleString(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"github-token": "ghp_12345"}

	m := map[string]interface{}{
		"token": "{github-token}",
	}

	err := ReplaceInMap(m, kvMap, logger)
	require.NoError(t, err)
	assert.Equal(t, "ghp_12345", m["token"])
}

func TestReplaceInMap_NestedMap(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"jira-api-key": "jk-999"}

	m := map[string]interface{}{
		"credentials": map[string]interface{}{
			"api_key": "{jira-api-key}",
		},
	}

	err := ReplaceInMap(m, kvMap, logger)
	require.NoError(t, err)

	nested := m["credentials"].(map[string]interface{})
	assert.Equal(t, "jk-999", nested["api_key"])
}

func TestReplaceInMap_ArrayOfStrings(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"url1": "http://example1.com",
		"url2": "http://example2.com",
	}

	m := map[string]interface{}{
		"urls": []interface{}{"{url1}", "{url2}", "literal"},
	}

	err := ReplaceInMap(m, kvMap, logger)
	require.NoError(t, err)

	urls := m["urls"].([]interface{})
	assert.Equal(t, "http://example1.com", urls[0])
	assert.Equal(t, "http://example2.com", urls[1])
	assert.Equal(t, "literal", urls[2])
}

func TestReplaceInMap_MixedTypes(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	m := map[string]interface{}{
		"str":   "{key}",
		"num":   42,
		"bool":  true,
		"float": 3.14,
	}

	err := ReplaceInMap(m, kvMap, logger)
	require.NoError(t, err)

	// Non-string types pass through untouched
	assert.Equal(t, "value", m["str"])
	assert.Equal(t, 42, m["num"])
	assert.Equal(t, true, m["bool"])
	assert.Equal(t, 3.14, m["float"])
}

func TestReplaceInStruct_SimpleFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"github-token": "ghp_12345"}

	type Credentials struct {
		Token string
	}

	type Definition struct {
		Credentials Credentials
	}

	def := &Definition{
		Credentials: Credentials{
			Token: "{github-token}",
		},
	}

	err := ReplaceInStruct(def, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "ghp_12345", def.Credentials.Token)
}

func TestReplaceInStruct_MultipleFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{
		"jira-user": "alice@example.com",
		"jira-key":  "jk-222",
	}

	type Credentials struct {
		Username string
		APIKey   string
	}

	creds := &Credentials{
		Username: "{jira-user}",
		APIKey:   "{jira-key}",
	}

	err := ReplaceInStruct(creds, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", creds.Username)
	assert.Equal(t, "jk-222", creds.APIKey)
}

func TestReplaceInStruct_UnexportedFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	type TestStruct struct {
		Exported   string
		unexported string // Should be skipped
	}

	s := &TestStruct{
		Exported:   "{key}",
		unexported: "{key}",
	}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)

	assert.Equal(t, "value", s.Exported)
	assert.Equal(t, "{key}", s.unexported)
}

func TestReplaceInStruct_PointerFields(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"trello-token": "tt-777"}

	type Inner struct {
		Token string
	}

	type Outer struct {
		Inner *Inner
	}

	s := &Outer{
		Inner: &Inner{Token: "{trello-token}"},
	}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)
	assert.Equal(t, "tt-777", s.Inner.Token)
}

func TestReplaceInStruct_NilPointer(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	type Inner struct {
		Token string
	}

	type Outer struct {
		Inner *Inner
	}

	s := &Outer{Inner: nil}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)
	assert.Nil(t, s.Inner)
}

func TestReplaceInStruct_SliceField(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"tag": "backend"}

	type TestStruct struct {
		Tags []string
	}

	s := &TestStruct{Tags: []string{"{tag}", "frontend"}}

	err := ReplaceInStruct(s, kvMap, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "frontend"}, s.Tags)
}

func TestReplaceInStruct_NotPointer(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	type TestStruct struct {
		Field string
	}

	s := TestStruct{Field: "{key}"}

	err := ReplaceInStruct(s, kvMap, logger)
	assert.Error(t, err)
}

func TestReplaceInStruct_NotStruct(t *testing.T) {
	logger := createTestLogger()
	kvMap := map[string]string{"key": "value"}

	value := "not a struct"

	err := ReplaceInStruct(&value, kvMap, logger)
	assert.Error(t, err)
}

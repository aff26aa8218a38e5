package validator

import (
	"os"
	"testing"

	"github.com/rydnr/bytehot-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseDescriptor() ClassDescriptor {
	return ClassDescriptor{
		ClassName:  "com.example.A",
		Super:      "java.lang.Object",
		Interfaces: []string{"java.io.Serializable"},
		Fields:     []FieldDescriptor{{Name: "count", Type: "I"}},
		Methods:    []MethodDescriptor{{Name: "greet", Signature: "()Ljava/lang/String;"}},
	}
}

func TestValidate_MethodBodyOnlyIsAccepted(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/A.class"

	prev := Encode(baseDescriptor(), []byte("old body"))
	require.NoError(t, writeFile(path, Encode(baseDescriptor(), []byte("new body"))))

	v := New()
	outcome := v.Validate(domain.ArtifactPath{AbsolutePath: path, ClassName: "com.example.A"}, prev)
	assert.True(t, outcome.Accepted())
	assert.Equal(t, domain.CategoryMethodBodyPlus, outcome.Category)
}

func TestValidate_FieldAddedIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/A.class"

	prev := Encode(baseDescriptor(), []byte("body"))
	next := baseDescriptor()
	next.Fields = append(next.Fields, FieldDescriptor{Name: "extra", Type: "I"})
	require.NoError(t, writeFile(path, Encode(next, []byte("body"))))

	v := New()
	outcome := v.Validate(domain.ArtifactPath{AbsolutePath: path, ClassName: "com.example.A"}, prev)
	assert.False(t, outcome.Accepted())
	assert.Equal(t, domain.ValidationRejected, outcome.Status)
	assert.Equal(t, domain.CategorySchemaFieldAdd, outcome.Category)
}

func TestValidate_MethodSignatureChangeIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/A.class"

	prev := Encode(baseDescriptor(), []byte("body"))
	next := baseDescriptor()
	next.Methods[0].Signature = "(I)Ljava/lang/String;"
	require.NoError(t, writeFile(path, Encode(next, []byte("body"))))

	v := New()
	outcome := v.Validate(domain.ArtifactPath{AbsolutePath: path, ClassName: "com.example.A"}, prev)
	assert.Equal(t, domain.ValidationRejected, outcome.Status)
	assert.Equal(t, domain.CategorySignatureChange, outcome.Category)
}

func TestValidate_MalformedHeaderIsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/A.class"
	require.NoError(t, writeFile(path, []byte("not a class file")))

	v := New()
	outcome := v.Validate(domain.ArtifactPath{AbsolutePath: path, ClassName: "com.example.A"}, nil)
	assert.Equal(t, domain.ValidationMalformed, outcome.Status)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

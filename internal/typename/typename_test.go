package typename

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"Int16", "short"},
		{"System.Int16", "short"},
		{"Int32", "int"},
		{"System.Int32", "int"},
		{"Int64", "long"},
		{"System.Int64", "long"},
		{"Boolean", "bool"},
		{"System.Boolean", "bool"},
		{"String", "string"},
		{"System.String", "string"},
		{"DateTime", "DateTime"},
		{"System.DateTime", "DateTime"},
		{"Decimal", "decimal"},
		{"System.Decimal", "decimal"},
		{"Double", "double"},
		{"System.Double", "double"},
		{"Single", "float"},
		{"System.Single", "float"},
		{"Byte[]", "byte[]"},
		{"System.Byte[]", "byte[]"},
		{"Guid", "Guid"},
		{"System.Guid", "Guid"},
		{"System.Nullable<System.Int32>", "int?"},
		{"Nullable<Guid>", "Guid?"},
		{"System.Nullable<System.Nullable<Int64>>", "long??"},
		{"  Int32  ", "int"},
		{"MyCustomType", "MyCustomType"},
		{"int", "int"},
		{"DateTime?", "DateTime?"},
		{"System.Object", "System.Object"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.raw))
		})
	}
}

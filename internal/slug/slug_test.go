package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"myproject", "myproject"},
		{"My Project", "my-project"},
		{"Résumé Docs", "resume-docs"},
		{"Søknad Dokumentasjon", "soknad-dokumentasjon"},
		{"  spaces  everywhere  ", "spaces-everywhere"},
		{"v2.1/release", "v2-1-release"},
		{"UPPER_case", "upper-case"},
		{"---", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Make(tt.in), "input %q", tt.in)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("my-project"))
	assert.True(t, IsValid("pages"))
	assert.False(t, IsValid("My Project"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("-leading"))
}

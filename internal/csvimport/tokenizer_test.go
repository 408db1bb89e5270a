package csvimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"quoted comma", `a,"b,c",d`, []string{"a", "b,c", "d"}},
		{"trims whitespace", `  a , "b" ,c  `, []string{"a", "b", "c"}},
		{"empty line", "", []string{""}},
		{"empty fields", "a,,c,", []string{"a", "", "c", ""}},
		{"unterminated quote", `a,"b,c`, []string{"a", "b,c"}},
		{"quoted amount", `06/01/2025,"AMAZON, INC","1,234.56"`, []string{"06/01/2025", "AMAZON, INC", "1,234.56"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLine(tt.line))
		})
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("Date,Description\r\n\r\n06/01/2025,Coffee\n   \n06/02/2025,Tea\n")
	assert.Equal(t, []string{"Date,Description", "06/01/2025,Coffee", "06/02/2025,Tea"}, got)
}

package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/dqlens-cli/internal/utils"
)

func TestWords(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"punctuation", "Customer-ID, must exist!", []string{"customer", "id", "must", "exist"}},
		{"diacritics", "Café Straße", []string{"cafe", "strasse"}},
		{"digits", "max 120 years", []string{"max", "120", "years"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, utils.Words(c.in))
		})
	}
	assert.Equal(t, 3, utils.CountWords("one two  three"))
}

func TestNameTokens(t *testing.T) {
	assert.Equal(t, []string{"customer", "id"}, utils.NameTokens("customerID"))
	assert.Equal(t, []string{"date", "of", "birth"}, utils.NameTokens("Date-of birth"))
	assert.Equal(t, []string{"amount", "eur"}, utils.NameTokens("amount (EUR)"))
	assert.Equal(t, []string{"e", "mail"}, utils.NameTokens("e_mail"))
}

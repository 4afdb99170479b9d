package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMD5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", CalculateMD5(nil))
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", CalculateMD5([]byte("hello")))
}

func TestPointers(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
}

func TestJSONHelpers(t *testing.T) {
	assert.JSONEq(t, `[]`, string(ConvertArrayToJSON(nil)))
	assert.JSONEq(t, `["a.pdf","b.png"]`, string(ConvertArrayToJSON([]string{"a.pdf", "b.png"})))
	assert.JSONEq(t, `{"a":1}`, string(ToJSON(map[string]int{"a": 1})))
	assert.Equal(t, "null", string(ToJSON(make(chan int))))
}

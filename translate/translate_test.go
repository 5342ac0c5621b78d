package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	SetLocales("en-US")
	assert.Equal(Language(), current)
	assert.Equal("line 12 bad", From("line %d %v", 12, "bad"))
	assert.Equal("device 0x1000 missing", From("device %#x missing", 4096))
}

func TestSetLocalesDefault(t *testing.T) {
	assert := assert.New(t)

	SetLocales()
	assert.NotNil(printer)
	assert.Equal("plain", From("plain"))
}

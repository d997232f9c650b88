package dbtask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOfficeDirectory_LookupNormalizesCode(t *testing.T) {
	dir := &OfficeDirectory{offices: map[string]Office{
		"KOJH": {Code: "KOJH", Name: "Kathmandu Office", District: "Kathmandu"},
	}}

	o, ok := dir.Lookup(" kojh ")
	assert.True(t, ok)
	assert.Equal(t, "Kathmandu Office", o.Name)

	_, ok = dir.Lookup("ZZZZ")
	assert.False(t, ok)
}

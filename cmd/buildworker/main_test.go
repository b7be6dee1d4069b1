package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigPaths_SetAppendsValues(t *testing.T) {
	var paths configPaths
	assert.NoError(t, paths.Set("a.toml"))
	assert.NoError(t, paths.Set("b.toml"))

	assert.Equal(t, configPaths{"a.toml", "b.toml"}, paths)
}

func TestConfigPaths_StringReflectsContents(t *testing.T) {
	paths := configPaths{"a.toml"}
	assert.Contains(t, paths.String(), "a.toml")
}

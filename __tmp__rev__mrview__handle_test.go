package mrview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameForDefinitionIsStableAndDistinct(t *testing.T) {
	a := ViewDefinition{MapSrc: "function(doc){emit(doc._id, 1);}"}
	b := ViewDefinition{MapSrc: "function(doc){emit(doc._id, 2);}"}

	assert.Equal(t, nameForDefinition(a), nameForDefinition(a))
	assert.NotEqual(t, nameForDefinition(a), nameForDefinition(b))
	assert.True(t, strings.HasPrefix(nameForDefinition(a), "mrview-"))
}

func TestReservedIDs(t *testing.T) {
	assert.True(t, reserved("_design/views"))
	assert.True(t, reserved("_local/checkpoint"))
	assert.False(t, reserved("doc-1"))
}



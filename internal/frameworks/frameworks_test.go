package frameworks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeAllReactDomSubpaths(t *testing.T) {
	assert.Equal(t, "react-dom", CanonicalizeAll("react-dom/client"))
	assert.Equal(t, "react-dom", CanonicalizeAll("react-dom/server"))
	assert.Equal(t, "react", CanonicalizeAll("react/jsx-runtime"))
}

func TestCanonicalizeAllNoAdapterMatchReturnsUnchanged(t *testing.T) {
	assert.Equal(t, "lodash/debounce", CanonicalizeAll("lodash/debounce"))
}

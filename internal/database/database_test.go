package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinConns(t *testing.T) {
	assert.EqualValues(t, 1, minConns(0))
	assert.EqualValues(t, 1, minConns(4))
	assert.EqualValues(t, 5, minConns(20))
}

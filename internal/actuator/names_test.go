package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRobotgoButton(t *testing.T) {
	assert.Equal(t, "left", robotgoButton(Left))
	assert.Equal(t, "right", robotgoButton(Right))
	assert.Equal(t, "center", robotgoButton(Middle))
}

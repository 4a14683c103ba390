package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckpointStore_BadURL(t *testing.T) {
	_, err := NewCheckpointStore("not-a-redis-url")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestCheckpointKey(t *testing.T) {
	assert.Equal(t, "preprocess:checkpoint:camera0", checkpointKey("camera0"))
}

package streamproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMarkDoneSentIsIdempotent(t *testing.T) {
	s := &State{}

	assert.True(t, s.MarkDoneSent())
	assert.False(t, s.MarkDoneSent())
	assert.True(t, s.DoneSent())
}

func TestStateEndSetsStreamEnded(t *testing.T) {
	s := &State{}
	assert.False(t, s.StreamEnded)

	s.End()
	assert.True(t, s.StreamEnded)
}

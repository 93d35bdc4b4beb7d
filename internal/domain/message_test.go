package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestConversationKey_Symmetric(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	assert.Equal(t, ConversationKey(a, b), ConversationKey(b, a))
	assert.Equal(t, a.String()+":"+b.String(), ConversationKey(b, a))
}

func TestConversationKey_DistinctPairs(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	assert.NotEqual(t, ConversationKey(a, b), ConversationKey(a, c))
	assert.NotEqual(t, ConversationKey(a, b), ConversationKey(b, c))
}

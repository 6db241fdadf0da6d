package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEIP1271Outcome(t *testing.T) {
	// eth_call against a code-less address succeeds with empty return data.
	// That must not count as a rejection; another chain may hold the wallet.
	for _, out := range [][]byte{nil, {}} {
		valid, decided := eip1271Outcome(out)
		assert.False(t, decided, "empty return data decides nothing")
		assert.False(t, valid)
	}

	magicWord := make([]byte, 32)
	copy(magicWord, eip1271Magic[:])
	valid, decided := eip1271Outcome(magicWord)
	assert.True(t, decided)
	assert.True(t, valid)

	valid, decided = eip1271Outcome(make([]byte, 32))
	assert.True(t, decided, "a contract that answered non-magic data rejected the signature")
	assert.False(t, valid)

	valid, decided = eip1271Outcome([]byte{0x01, 0x02})
	assert.True(t, decided)
	assert.False(t, valid)
}

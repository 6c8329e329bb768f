package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDRoundTrip(t *testing.T) {
	id, err := NewSessionID(time.Now())
	require.NoError(t, err)
	assert.Len(t, string(id), 23)
	parsed, err := ParseSessionID(string(id))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestSessionIDRejectsVariants(t *testing.T) {
	cases := []string{
		"pt-20260115-120000-abc",    // suffix too short
		"pt-20260115-120000-abcde",  // suffix too long
		"pt_20260115-120000-abcd",   // wrong separator
		"pt-2026015-120000-abcd",    // wrong date length
		"pt-20260115-120000-ABCD",   // wrong charset (uppercase)
		"pt-20260115-120000-a1bd",   // '1' not in alphabet
		"xx-20260115-120000-abcd",   // wrong prefix
	}
	for _, c := range cases {
		_, err := ParseSessionID(c)
		assert.Error(t, err, "expected %q to be rejected", c)
	}
}

func TestStartIDDeterministicFormat(t *testing.T) {
	id := NewStartID("boot-1", 123456, PID(42))
	assert.Equal(t, StartID("boot-1:123456:42"), id)
}

func TestProcessIdentityEqual(t *testing.T) {
	a := ProcessIdentity{PID: 1, StartID: "boot:1:1", UID: 1000}
	b := a
	assert.True(t, a.Equal(b))
	b.StartID = "boot:2:1"
	assert.False(t, a.Equal(b))
}

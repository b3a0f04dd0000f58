package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", "what do ya want for nothing?")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestHeadersAt_Verify(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "s3cret"}
	h := auth.HeadersAt("POST", "/orders", `{"volume":5}`, 1700000000000)

	require.Equal(t, "key-1", h[HeaderKey])
	require.Equal(t, "1700000000000", h[HeaderTimestamp])
	assert.True(t, auth.Verify("POST", "/orders", `{"volume":5}`, h[HeaderTimestamp], h[HeaderSignature]))
	assert.False(t, auth.Verify("POST", "/orders", `{"volume":6}`, h[HeaderTimestamp], h[HeaderSignature]))
}

func TestString_Redacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "xy"}
	assert.Equal(t, "HMACAuth{key=abcd****, secret=****}", auth.String())
}

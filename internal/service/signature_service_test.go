package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testCallbackBody = `{"pix":[{"endToEndId":"E1","txid":"abc","valor":"50.00"}]}`

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()

	signature := svc.Sign("webhook-secret", testCallbackBody)

	assert.Regexp(t, `^[0-9a-f]{64}$`, signature)
	assert.True(t, svc.Verify("webhook-secret", testCallbackBody, signature))
}

func TestHMACSignatureService_AcceptsPrefixAndUppercase(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("webhook-secret", testCallbackBody)

	assert.True(t, svc.Verify("webhook-secret", testCallbackBody, "sha256="+signature))
	assert.True(t, svc.Verify("webhook-secret", testCallbackBody, strings.ToUpper(signature)))
}

func TestHMACSignatureService_VerifyFails(t *testing.T) {
	svc := NewHMACSignatureService()
	signature := svc.Sign("webhook-secret", testCallbackBody)

	tests := map[string]struct {
		secret    string
		payload   string
		signature string
	}{
		"wrong key":       {"other-secret", testCallbackBody, signature},
		"tampered body":   {"webhook-secret", strings.Replace(testCallbackBody, "50.00", "5000.00", 1), signature},
		"garbage":         {"webhook-secret", testCallbackBody, "invalidsignature"},
		"empty signature": {"webhook-secret", testCallbackBody, ""},
		"empty secret":    {"", testCallbackBody, svc.Sign("", testCallbackBody)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.False(t, svc.Verify(tc.secret, tc.payload, tc.signature))
		})
	}
}

func TestHMACSignatureService_DeterministicSign(t *testing.T) {
	svc := NewHMACSignatureService()
	assert.Equal(t, svc.Sign("key", "data"), svc.Sign("key", "data"))
}

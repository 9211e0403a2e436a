package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")
	body := []byte(`{"transaction_number":"charge_abc","amount":"29.99"}`)

	sig := signer.Sign(EndpointSale, body)
	assert.NotEmpty(t, sig)
	assert.True(t, signer.Verify(EndpointSale, body, sig))
}

func TestSignerDetectsTampering(t *testing.T) {
	signer := NewSigner("test-secret")
	body := []byte(`{"amount":"29.99"}`)
	sig := signer.Sign(EndpointSale, body)

	assert.False(t, signer.Verify(EndpointSale, []byte(`{"amount":"2999.99"}`), sig),
		"altered body must fail verification")
	assert.False(t, signer.Verify(EndpointRefund, body, sig),
		"altered path must fail verification")
	assert.False(t, signer.Verify(EndpointSale, body, "deadbeef"))
	assert.False(t, signer.Verify(EndpointSale, body, "not-hex!"))
}

func TestSignerSecretMatters(t *testing.T) {
	body := []byte(`{"amount":"29.99"}`)
	sig := NewSigner("secret-a").Sign(EndpointSale, body)
	assert.False(t, NewSigner("secret-b").Verify(EndpointSale, body, sig))
}

func TestSignerDeterministic(t *testing.T) {
	signer := NewSigner("test-secret")
	body := []byte(`{"amount":"29.99"}`)
	assert.Equal(t, signer.Sign(EndpointSale, body), signer.Sign(EndpointSale, body))
}

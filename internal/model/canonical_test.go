package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	p := Payload{
		"zebra": Int(1),
		"apple": Int(2),
	}
	out, err := MarshalCanonical(p)
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"zebra":1}`, string(out))
}

func TestMarshalCanonicalEmpty(t *testing.T) {
	out, err := MarshalCanonical(Payload{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))
}

func TestMarshalCanonicalScalars(t *testing.T) {
	p := Payload{
		"mode":  String("heat"),
		"temp":  Float(21.5),
		"count": Int(3),
		"fan":   Bool(false),
	}
	out, err := MarshalCanonical(p)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"fan":false,"mode":"heat","temp":21.5}`, string(out))
}

func TestMarshalCanonicalFloatShortest(t *testing.T) {
	out, err := MarshalCanonical(Payload{"t": Float(21.0)})
	require.NoError(t, err)
	assert.Equal(t, `{"t":21}`, string(out))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical(Payload{"note": String("a<b>&c")})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"a<b>&c"}`, string(out))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// e + combining acute (NFD) and precomposed é (NFC) must produce
	// identical canonical bytes.
	nfd := Payload{"name": String("café")}
	nfc := Payload{"name": String("café")}

	outNFD, err := MarshalCanonical(nfd)
	require.NoError(t, err)
	outNFC, err := MarshalCanonical(nfc)
	require.NoError(t, err)

	assert.Equal(t, outNFC, outNFD)
}

func TestMarshalCanonicalDeferredTagged(t *testing.T) {
	deferred := Payload{"temp": Deferred("{{ x }}")}
	literal := Payload{"temp": String("{{ x }}")}

	outDeferred, err := MarshalCanonical(deferred)
	require.NoError(t, err)
	outLiteral, err := MarshalCanonical(literal)
	require.NoError(t, err)

	assert.Equal(t, `{"temp":{"$deferred":"{{ x }}"}}`, string(outDeferred))
	assert.NotEqual(t, outLiteral, outDeferred)
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	p := Payload{
		"a": String("x"),
		"b": Float(1.25),
		"c": Bool(true),
		"d": Deferred("{{ y }}"),
	}
	first, err := MarshalCanonical(p)
	require.NoError(t, err)
	for range 10 {
		again, err := MarshalCanonical(p)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

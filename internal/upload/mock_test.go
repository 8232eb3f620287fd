package upload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockSink_Upload(t *testing.T) {
	sink := NewMockSink("https://cdn.test/")

	url, err := sink.Upload([]byte("payload"), "streams/u1/s1/00000.ts")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/streams/u1/s1/00000.ts", url)

	data, ok := sink.Object("streams/u1/s1/00000.ts")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), data)
	require.Equal(t, 1, sink.Count())
}

func TestMockSink_FailNext(t *testing.T) {
	sink := NewMockSink("https://cdn.test")
	sink.FailNext(2)

	_, err := sink.Upload([]byte("a"), "k1")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = sink.Upload([]byte("b"), "k2")
	require.ErrorIs(t, err, ErrUnavailable)

	url, err := sink.Upload([]byte("c"), "k3")
	require.NoError(t, err)
	require.NotEmpty(t, url)
	require.Equal(t, 1, sink.Count())
}

func TestMockSink_generatedBaseURL(t *testing.T) {
	sink := NewMockSink("")
	url, err := sink.Upload([]byte("x"), "k")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn-mock-"))
}

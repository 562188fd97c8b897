package slug

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Phones":                "phones",
		"Phones ":               "phones",
		"  Smart   Watches!! ":  "smart-watches",
		"Café Crème":            "cafe-creme",
		"USB-C -- Cables":       "usb-c-cables",
		"snake_case name":       "snake_case-name",
		"iPhone 15 Pro (256GB)": "iphone-15-pro-256gb",
	}
	for in, want := range cases {
		got, err := Make(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestMake_EmptyRejected(t *testing.T) {
	for _, in := range []string{"", "   ", "!!!", "—", "日本語"} {
		_, err := Make(in)
		assert.ErrorIs(t, err, ErrEmpty, "input %q", in)
	}
}

func TestMake_Truncates(t *testing.T) {
	got, err := Make(strings.Repeat("a", MaxLen+50))
	require.NoError(t, err)
	assert.Len(t, got, MaxLen)
}

func setExists(taken ...string) ExistsFunc {
	set := make(map[string]bool, len(taken))
	for _, s := range taken {
		set[s] = true
	}
	return func(_ context.Context, c string) (bool, error) { return set[c], nil }
}

func TestUnique_SuffixLoop(t *testing.T) {
	ctx := context.Background()

	got, err := Unique(ctx, "phones", setExists())
	require.NoError(t, err)
	assert.Equal(t, "phones", got)

	got, err = Unique(ctx, "phones", setExists("phones"))
	require.NoError(t, err)
	assert.Equal(t, "phones-1", got)

	got, err = Unique(ctx, "phones", setExists("phones", "phones-1", "phones-2"))
	require.NoError(t, err)
	assert.Equal(t, "phones-3", got)
}

func TestUnique_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := Unique(context.Background(), "x", func(context.Context, string) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Unique(ctx, "x", setExists())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMakeUnique_TrailingSpaceCollides(t *testing.T) {
	ctx := context.Background()
	first, err := MakeUnique(ctx, "Phones", setExists())
	require.NoError(t, err)
	second, err := MakeUnique(ctx, "Phones ", setExists(first))
	require.NoError(t, err)
	assert.Equal(t, "phones", first)
	assert.Equal(t, "phones-1", second)

	_, err = MakeUnique(ctx, "   ", setExists())
	assert.ErrorIs(t, err, ErrEmpty)
}

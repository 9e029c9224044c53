package render

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestExtent(t *testing.T) {
	for _, tc := range []struct {
		e      Extent
		zero   bool
		aspect float32
		str    string
	}{
		{Extent{800, 600}, false, 800.0 / 600.0, "800x600"},
		{Extent{0, 600}, true, 0, "0x600"},
		{Extent{800, 0}, true, 0, "800x0"},
		{Extent{}, true, 0, "0x0"},
		{Extent{1, 1}, false, 1, "1x1"},
	} {
		require.Equal(t, tc.zero, tc.e.IsZero(), tc.str)
		require.InDelta(t, tc.aspect, tc.e.AspectRatio(), 1e-6, tc.str)
		require.Equal(t, tc.str, tc.e.String())
	}
}

func TestParsePresentMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want PresentMode
	}{
		{"fifo", PresentFIFO},
		{"FIFO", PresentFIFO},
		{"mailbox", PresentMailbox},
		{"Immediate", PresentImmediate},
	} {
		got, err := ParsePresentMode(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
		require.Equal(t, got, mustParse(t, got.String()))
	}

	_, err := ParsePresentMode("relaxed")
	require.Error(t, err)
	require.Equal(t, "PresentMode(9)", PresentMode(9).String())
}

func mustParse(t *testing.T, s string) PresentMode {
	t.Helper()
	m, err := ParsePresentMode(s)
	require.NoError(t, err)
	return m
}

func TestCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := func() (err error) {
		defer CheckError(&err)
		OrPanic(boom)
		return nil
	}()
	require.Same(t, boom, err)

	err = func() (err error) {
		defer CheckError(&err)
		panic("not an error")
	}()
	require.EqualError(t, err, "not an error")

	var ran bool
	OrPanic(nil, func() { ran = true })
	require.False(t, ran)
}

func TestContractError(t *testing.T) {
	err := contractViolation(func() { assertf(false, "Op", "bad %d", 7) })
	require.EqualError(t, err, "render: Op: bad 7")
	require.True(t, IsContractViolation(err))
	require.False(t, IsContractViolation(boomErr()))
	require.False(t, IsContractViolation(nil))
}

func boomErr() error { return errors.Wrap(ErrZeroExtent, "ctx") }

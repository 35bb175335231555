package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFraction(t *testing.T) {
	testCases := []struct {
		f   string
		exp Fraction
		err bool
	}{
		{
			f:   "2/3",
			exp: Fraction{2, 3},
			err: false,
		},
		{
			f:   "15/5",
			exp: Fraction{15, 5},
			err: false,
		},
		// test extreme values
		{
			f:   "9223372036854775807/9223372036854775807",
			exp: Fraction{9223372036854775807, 9223372036854775807},
			err: false,
		},
		{
			f:   "9223372036854775808/9223372036854775807",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "2/3/4",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "123",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "1.5/3",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "remember that 2/3 is the default",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "-1/2",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "1/-2",
			exp: Fraction{},
			err: true,
		},
		{
			f:   "2/0",
			exp: Fraction{},
			err: true,
		},
	}

	for idx, tc := range testCases {
		output, err := ParseFraction(tc.f)
		if tc.err {
			assert.Error(t, err, idx)
		} else {
			require.NoError(t, err, idx)
		}
		assert.Equal(t, tc.exp, output, idx)
	}
}

package monitoring

import "testing"

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-98765, "-98,765"},
	}

	for _, test := range tests {
		if result := FormatWithCommas(test.input); result != test.expected {
			t.Errorf("FormatWithCommas(%d): expected %s, got %s", test.input, test.expected, result)
		}
	}
}

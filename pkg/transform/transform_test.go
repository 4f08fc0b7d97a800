package transform

import "testing"

func TestApplyChainIdempotentTrim(t *testing.T) {
	got := ApplyChain("  hello  ", "trim|trim")
	want := ApplyChain("  hello  ", "trim")
	if got != want {
		t.Errorf("ApplyChain(trim|trim) = %q, want %q", got, want)
	}
}

func TestApplyChainUnknownStepPassesThrough(t *testing.T) {
	got := ApplyChain("value", "frobnicate")
	if got != "value" {
		t.Errorf("ApplyChain with unknown step = %q, want unchanged %q", got, "value")
	}
}

func TestApplyChainEmptyUppercase(t *testing.T) {
	got := ApplyChain("", "uppercase")
	if got != "" {
		t.Errorf("ApplyChain(\"\", uppercase) = %q, want empty", got)
	}
}

func TestRemoveLeadingZeros(t *testing.T) {
	cases := map[string]string{
		"00012345": "12345",
		"0000":     "0",
		"5":        "5",
	}
	for in, want := range cases {
		if got := ApplyChain(in, "remove_leading_zeros"); got != want {
			t.Errorf("remove_leading_zeros(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransformAndConvertIntegerChain(t *testing.T) {
	got, err := TransformAndConvert("00012345", "remove_leading_zeros|integer_format", TypeInteger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(12345) {
		t.Errorf("got %v (%T), want int64(12345)", got, got)
	}
}

func TestTransformAndConvertNullOnBlank(t *testing.T) {
	got, err := TransformAndConvert("   ", "uppercase", TypeString)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil for blank input", got)
	}
}

func TestTransformAndConvertBooleanStrict(t *testing.T) {
	if _, err := TransformAndConvert("yes", "", TypeBoolean); err == nil {
		t.Error("expected TransformError for non-strict boolean literal")
	}
	got, err := TransformAndConvert("true", "", TypeBoolean)
	if err != nil || got != true {
		t.Errorf("got %v, %v; want true, nil", got, err)
	}
}

func TestTransformAndConvertDecimalExact(t *testing.T) {
	got, err := TransformAndConvert("1234,5", "decimal_format", TypeString)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "1234.500" {
		t.Errorf("decimal_format got %q, want %q", got, "1234.500")
	}
}

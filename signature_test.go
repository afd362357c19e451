package dbus

import "testing"

func TestParseSignatureRoundTrip(t *testing.T) {
	sigs := []string{
		"",
		"y",
		"ai",
		"a{sv}",
		"(yu)",
		"a(sai)",
		"(a{sv}as)",
		"ybnqiuxtdsogav",
	}
	for _, sig := range sigs {
		types, _, err := ParseSignature(sig)
		if err != nil {
			t.Errorf("ParseSignature(%q): %v", sig, err)
			continue
		}
		var got string
		for _, typ := range types {
			got += TypeSignature(typ)
		}
		if got != sig {
			t.Errorf("ParseSignature(%q) round trip = %q", sig, got)
		}
	}
}

func TestParseSignatureErrors(t *testing.T) {
	bad := []string{
		"a",
		"(yu",
		"{sv",
		"{vs}", // variant is not a basic type, invalid dict-entry key
		")",
		"z",
		"{s}",
		"a)",  // close paren where an array element type was expected
		"{)",  // close paren where a dict-entry key type was expected
		"{s)", // close paren where a dict-entry value type was expected
	}
	for _, sig := range bad {
		if _, _, err := ParseSignature(sig); err == nil {
			t.Errorf("ParseSignature(%q): want error, got nil", sig)
		}
	}
}

func TestParseSingleType(t *testing.T) {
	typ, _, err := ParseSingleType("a{sv}")
	if err != nil {
		t.Fatalf("ParseSingleType: %v", err)
	}
	if got := TypeSignature(typ); got != "a{sv}" {
		t.Errorf("TypeSignature = %q, want a{sv}", got)
	}

	if _, _, err := ParseSingleType(""); err == nil {
		t.Error("ParseSingleType(\"\"): want error, got nil")
	}
	if _, _, err := ParseSingleType("yy"); err == nil {
		t.Error("ParseSingleType(\"yy\"): want error, got nil (more than one type)")
	}
}

func TestParseSignatureDictEntryRequiresBasicKey(t *testing.T) {
	if _, _, err := ParseSignature("a{vy}"); err == nil {
		t.Error("ParseSignature(a{vy}): want error for variant dict-entry key, got nil")
	}
}

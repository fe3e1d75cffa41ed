package domain

import "testing"

func TestTLPOrdering(t *testing.T) {
	tests := []struct {
		name        string
		a, b        TLP
		permissive  TLP
		restrictive TLP
	}{
		{"amber vs red", TLPAmber, TLPRed, TLPAmber, TLPRed},
		{"white vs green", TLPWhite, TLPGreen, TLPWhite, TLPGreen},
		{"unknown vs amber", TLPUnknown, TLPAmber, TLPAmber, TLPAmber},
		{"red vs unknown", TLPRed, TLPUnknown, TLPRed, TLPRed},
		{"unknown vs unknown", TLPUnknown, TLPUnknown, TLPUnknown, TLPUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MorePermissiveTLP(tt.a, tt.b); got != tt.permissive {
				t.Errorf("MorePermissiveTLP(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.permissive)
			}
			if got := MoreRestrictiveTLP(tt.a, tt.b); got != tt.restrictive {
				t.Errorf("MoreRestrictiveTLP(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.restrictive)
			}
		})
	}
}

func TestParseTLP(t *testing.T) {
	tests := map[string]TLP{
		"AMBER":  TLPAmber,
		" red ":  TLPRed,
		"White":  TLPWhite,
		"green":  TLPGreen,
		"purple": TLPUnknown,
		"":       TLPUnknown,
	}
	for in, want := range tests {
		if got := ParseTLP(in); got != want {
			t.Errorf("ParseTLP(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseConfidence(t *testing.T) {
	if got := ParseConfidence("High"); got != ConfidenceHigh {
		t.Errorf("expected high, got %s", got)
	}
	if got := ParseConfidence("certain"); got != ConfidenceUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
	if ConfidenceLow >= ConfidenceMedium || ConfidenceMedium >= ConfidenceHigh {
		t.Error("confidence levels must be strictly increasing")
	}
}

func TestOriginValuesAreDistinct(t *testing.T) {
	seen := map[Origin]bool{}
	for _, o := range []Origin{OriginUnknown, OriginExternalUncertain, OriginPublic, OriginVendor, OriginPartner} {
		if seen[o] {
			t.Fatalf("duplicate origin ordinal %d", o)
		}
		seen[o] = true
		if ParseOrigin(o.String()) != o {
			t.Errorf("origin %s does not round-trip", o)
		}
	}
}

func TestParseContextType(t *testing.T) {
	if ct, ok := ParseContextType("inves"); !ok || ct != ContextInvestigation {
		t.Errorf("expected INVES, got %v %v", ct, ok)
	}
	if _, ok := ParseContextType("FOO"); ok {
		t.Error("FOO must not parse")
	}
}

func TestParseTagRef(t *testing.T) {
	r := ParseTagRef("INVES-1:malware")
	if r.Context != "INVES-1" || r.Name != "malware" || r.IsContextTag() {
		t.Errorf("unexpected ref %+v", r)
	}
	r = ParseTagRef("INVES-1")
	if !r.IsContextTag() || r.String() != "INVES-1:INVES-1" {
		t.Errorf("bare name should be its own context, got %+v", r)
	}
}

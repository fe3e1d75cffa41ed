package domain

import "testing"

func TestExtractURLComponents(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []Observable
	}{
		{
			name:  "url with ip host",
			value: "http://198.0.2.12/malware.sh",
			want:  []Observable{{Type: TypeIPv4, Value: "198.0.2.12"}},
		},
		{
			name:  "url with domain",
			value: "https://Evil.Example.com/payload",
			want:  []Observable{{Type: TypeFQDN, Value: "evil.example.com"}},
		},
		{
			name:  "ip with port",
			value: "198.0.2.12:8080",
			want:  []Observable{{Type: TypeIPv4, Value: "198.0.2.12"}},
		},
		{
			name:  "plain word",
			value: "nothing-here",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLComponents(tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d observables, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("observable %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		typ, in, want string
	}{
		{TypeURL, "HTTP://Evil.COM/Path/", "http://evil.com/Path"},
		{TypeFQDN, "Evil.Example.COM.", "evil.example.com"},
		{TypeIPv4, " 10.0.0.1 ", "10.0.0.1"},
		{TypeIPv6, "2001:DB8::1", "2001:db8::1"},
		{TypeMD5, "D41D8CD98F00B204E9800998ECF8427E", "d41d8cd98f00b204e9800998ecf8427e"},
		{"Custom", " keep ", "keep"},
	}
	for _, tt := range tests {
		if got := NormalizeValue(tt.typ, tt.in); got != tt.want {
			t.Errorf("NormalizeValue(%s, %q) = %q, want %q", tt.typ, tt.in, got, tt.want)
		}
	}
}

func TestHashType(t *testing.T) {
	if typ, ok := HashType("d41d8cd98f00b204e9800998ecf8427e"); !ok || typ != TypeMD5 {
		t.Errorf("expected MD5, got %s %v", typ, ok)
	}
	if _, ok := HashType("not-a-hash-not-a-hash-not-a-hash"); ok {
		t.Error("non-hex value must not classify")
	}
}

package domain

import (
	"net"
	"net/url"
	"strings"
)

// Observable is a (type, value) pair derived from a raw fact value.
type Observable struct {
	Type  string
	Value string
}

// ExtractURLComponents pulls the host out of a URL-like value.
// For example, "http://198.0.2.12/malware.sh" yields an IPv4 observable and
// "https://evil.example/x" yields an FQDN. Values that are not URLs but
// embed an address ("198.0.2.12:8080") yield the first address found.
func ExtractURLComponents(value string) []Observable {
	var out []Observable

	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil {
			host := u.Hostname()
			if host != "" && host != value {
				if t, ok := ClassifyIP(host); ok {
					out = append(out, Observable{Type: t, Value: NormalizeValue(t, host)})
				} else if strings.Contains(host, ".") {
					out = append(out, Observable{Type: TypeFQDN, Value: NormalizeValue(TypeFQDN, host)})
				}
			}
		}
		return out
	}

	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ':' || r == '/' || r == '?'
	})
	for _, part := range parts {
		if part == value {
			continue
		}
		if t, ok := ClassifyIP(part); ok {
			out = append(out, Observable{Type: t, Value: NormalizeValue(t, part)})
			break // first address only
		}
	}
	return out
}

// ClassifyIP returns TypeIPv4 or TypeIPv6 for a parseable address.
func ClassifyIP(value string) (string, bool) {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return "", false
	}
	if ip.To4() != nil {
		return TypeIPv4, true
	}
	return TypeIPv6, true
}

// HashType guesses the hash algorithm from the digest length.
func HashType(value string) (string, bool) {
	v := strings.TrimSpace(value)
	for _, r := range v {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return "", false
		}
	}
	switch len(v) {
	case 32:
		return TypeMD5, true
	case 40:
		return TypeSHA1, true
	case 64:
		return TypeSHA256, true
	case 128:
		return TypeSHA512, true
	}
	return "", false
}

// NormalizeValue canonicalises an indicator value so the same observable
// seen in different reports maps onto one indicator.
func NormalizeValue(typeName, value string) string {
	value = strings.TrimSpace(value)
	switch typeName {
	case TypeURL:
		// scheme and host are case-insensitive, the path is not
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			u.Scheme = strings.ToLower(u.Scheme)
			u.Host = strings.ToLower(u.Host)
			value = u.String()
		}
		return strings.TrimSuffix(value, "/")

	case TypeFQDN:
		return strings.TrimSuffix(strings.ToLower(value), ".")

	case TypeEmail, TypeMD5, TypeSHA1, TypeSHA256, TypeSHA512:
		return strings.ToLower(value)

	case TypeIPv4, TypeIPv6:
		if ip := net.ParseIP(value); ip != nil {
			return ip.String()
		}
		return value

	default:
		return value
	}
}

package metrics

import (
	"fmt"
	"strings"
	"unicode"
)

// typeLabels names error types whose Go names read poorly in a report. Keys
// are %T output without the pointer star and the import path.
var typeLabels = map[string]string{
	"net.OpError":      "Network error",
	"net.DNSError":     "DNS lookup error",
	"net.AddrError":    "Address error",
	"errors.joinError": "Multiple errors",
	"os.SyscallError":  "System call error",
	"os.PathError":     "File error",
}

// FriendlyErrorName returns a human-friendly label for a Go error type name
// as printed by %T, such as "*net.OpError".
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	if label, ok := typeLabels[name]; ok {
		return label
	}

	pkg, typ, ok := strings.Cut(name, ".")
	if !ok {
		pkg, typ = "", name
	}
	switch {
	case pkg == "context" && strings.Contains(strings.ToLower(typ), "deadline"):
		return "Context deadline exceeded"
	case pkg == "net":
		return "Network error"
	case pkg == "" || pkg == "main":
		return splitWords(typ)
	}
	return fmt.Sprintf("%s (%s)", splitWords(typ), pkg)
}

// splitWords breaks a Go identifier into words, keeping acronyms whole:
// HTTPTimeout becomes "HTTP Timeout".
func splitWords(ident string) string {
	runes := []rune(ident)
	var b strings.Builder
	for i, r := range runes {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

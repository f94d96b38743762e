package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint produces a deterministic content hash for a single value. The
// runtime's cache layer keys module-call results with FingerprintAll over
// the module's input map (§4.11 item 4).
func Fingerprint(v Value) string {
	var b strings.Builder
	writeFingerprint(&b, v)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FingerprintAll combines a module name with a set of named input values
// into a single cache key.
func FingerprintAll(moduleName string, inputs map[string]Value) string {
	names := make([]string, 0, len(inputs))
	for n := range inputs {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(moduleName)
	for _, n := range names {
		b.WriteString("|")
		b.WriteString(n)
		b.WriteString("=")
		writeFingerprint(&b, inputs[n])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeFingerprint(b *strings.Builder, v Value) {
	fmt.Fprintf(b, "%d(", v.Kind)
	switch v.Kind {
	case KindString:
		b.WriteString(v.StringVal)
	case KindInt:
		fmt.Fprintf(b, "%d", v.IntVal)
	case KindFloat:
		fmt.Fprintf(b, "%g", v.FloatVal)
	case KindBool:
		fmt.Fprintf(b, "%t", v.BoolVal)
	case KindList:
		for _, item := range v.List {
			writeFingerprint(b, item)
			b.WriteString(",")
		}
	case KindMap:
		for i := range v.MapKeys {
			writeFingerprint(b, v.MapKeys[i])
			b.WriteString(":")
			writeFingerprint(b, v.MapVals[i])
			b.WriteString(",")
		}
	case KindOptional:
		if v.Optional == nil {
			b.WriteString("none")
		} else {
			writeFingerprint(b, *v.Optional)
		}
	case KindProduct:
		names := make([]string, 0, len(v.Product))
		for n := range v.Product {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			b.WriteString(n)
			b.WriteString("=")
			writeFingerprint(b, v.Product[n])
			b.WriteString(",")
		}
	case KindUnion:
		b.WriteString(v.UnionTag)
		b.WriteString(":")
		writeFingerprint(b, v.Union)
	}
	b.WriteString(")")
}

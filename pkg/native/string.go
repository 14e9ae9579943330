package native

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf16"
)

// JString represents a java.lang.String. Two JStrings are the same Java
// object only if they are the same pointer.
type JString struct {
	Value string
}

// NewString allocates a fresh string object.
func NewString(s string) *JString {
	return &JString{Value: s}
}

func (s *JString) ClassName() string { return "java/lang/String" }

func (s *JString) String() string { return s.Value }

// Length returns the number of UTF-16 code units.
func (s *JString) Length() int32 {
	return int32(len(utf16.Encode([]rune(s.Value))))
}

// HashCode follows java.lang.String.hashCode.
func (s *JString) HashCode() int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s.Value)) {
		h = 31*h + int32(c)
	}
	return h
}

// CharAt returns the UTF-16 code unit at index, or false when out of range.
func (s *JString) CharAt(index int32) (uint16, bool) {
	units := utf16.Encode([]rune(s.Value))
	if index < 0 || int(index) >= len(units) {
		return 0, false
	}
	return units[index], true
}

// Equals compares by content.
func (s *JString) Equals(other any) bool {
	o, ok := other.(*JString)
	return ok && o.Value == s.Value
}

// ReplaceAll mirrors String.replaceAll. Invalid patterns are reported as
// errors so the caller can raise PatternSyntaxException.
func (s *JString) ReplaceAll(pattern, replacement string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(s.Value, replacement), nil
}

func (s *JString) Replace(target, replacement string) string {
	return strings.ReplaceAll(s.Value, target, replacement)
}

// StringPool interns string literals so that equal constants share identity,
// as ldc does on a real JVM.
type StringPool struct {
	mu      sync.Mutex
	strings map[string]*JString
}

func NewStringPool() *StringPool {
	return &StringPool{strings: make(map[string]*JString)}
}

// Intern returns the canonical object for s.
func (p *StringPool) Intern(s string) *JString {
	p.mu.Lock()
	defer p.mu.Unlock()
	if js, ok := p.strings[s]; ok {
		return js
	}
	js := NewString(s)
	p.strings[s] = js
	return js
}

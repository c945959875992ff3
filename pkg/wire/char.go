package wire

import (
    "fmt"
    "strings"
    "unicode"
    "unicode/utf16"
)

// MaxChar is the largest code point the wide char encoding accepts.
const MaxChar = 0x10FFFF

// Wide chars use a prefix-free layout close to UTF-8. Unlike UTF-8 the
// surrogate range is not special: 0xD800..0xDFFF encode as plain 3-byte
// values, which keeps lone UTF-16 surrogates lossless.
//
//  0xxxxxxx                             < 0x80
//  110xxxxx 10xxxxxx                    < 0x800
//  1110xxxx 10xxxxxx 10xxxxxx           < 0x10000
//  11110xxx 10xxxxxx 10xxxxxx 10xxxxxx  <= 0x10FFFF

// CharSize returns the encoded size of c, or 0 when c is out of range.
func CharSize(c rune) int {
    switch {
    case c < 0:
        return 0
    case c < 0x80:
        return 1
    case c < 0x800:
        return 2
    case c < 0x10000:
        return 3
    case c <= MaxChar:
        return 4
    default:
        return 0
    }
}

// WriteChar writes one code point.
func (w *Writer) WriteChar(c rune) {
    b := w.buf[:0]
    switch CharSize(c) {
    case 1:
        b = append(b, byte(c))
    case 2:
        b = append(b, 0xC0|byte(c>>6), 0x80|byte(c)&0x3F)
    case 3:
        b = append(b, 0xE0|byte(c>>12), 0x80|byte(c>>6)&0x3F, 0x80|byte(c)&0x3F)
    case 4:
        b = append(b, 0xF0|byte(c>>18), 0x80|byte(c>>12)&0x3F, 0x80|byte(c>>6)&0x3F, 0x80|byte(c)&0x3F)
    default:
        w.Fail(fmt.Errorf("wire: code point %#x out of range", c))
        return
    }
    w.write(b)
}

// ReadChar reads one code point.
func (r *Reader) ReadChar() rune {
    lead := r.ReadUint8()
    if r.err != nil { return 0 }
    var (
        c     rune
        more  int
        least rune
    )
    switch {
    case lead < 0x80:
        return rune(lead)
    case lead&0xE0 == 0xC0:
        c, more, least = rune(lead&0x1F), 1, 0x80
    case lead&0xF0 == 0xE0:
        c, more, least = rune(lead&0x0F), 2, 0x800
    case lead&0xF8 == 0xF0:
        c, more, least = rune(lead&0x07), 3, 0x10000
    default:
        r.malformed("wide char lead byte 0x%02x", lead)
        return 0
    }
    for i := 0; i < more; i++ {
        b := r.ReadUint8()
        if r.err != nil { return 0 }
        if b&0xC0 != 0x80 {
            r.malformed("wide char continuation byte 0x%02x", b)
            return 0
        }
        c = c<<6 | rune(b&0x3F)
    }
    if c < least || c > MaxChar {
        r.malformed("wide char value %#x", c)
        return 0
    }
    return c
}

// WriteString writes s as a compressed count of code points followed by
// the code points. Invalid UTF-8 sequences are written as U+FFFD.
func (w *Writer) WriteString(s string) {
    runes := []rune(s)
    w.WriteLen(len(runes))
    for _, c := range runes {
        w.WriteChar(c)
    }
}

// ReadString reads text written by WriteString.
func (r *Reader) ReadString() string {
    n := r.ReadLen()
    if r.err != nil { return "" }
    if n > r.MaxBytes {
        r.malformed("string of %d chars exceeds limit %d", n, r.MaxBytes)
        return ""
    }
    var sb strings.Builder
    sb.Grow(min(n, preallocLimit))
    for i := 0; i < n; i++ {
        c := r.ReadChar()
        if r.err != nil { return "" }
        sb.WriteRune(c)
    }
    return sb.String()
}

// JoinSurrogates combines valid UTF-16 surrogate pairs into single code
// points. Unpaired surrogates are kept as they are.
func JoinSurrogates(s []uint16) []rune {
    out := make([]rune, 0, len(s))
    for i := 0; i < len(s); i++ {
        c := rune(s[i])
        if utf16.IsSurrogate(c) && i+1 < len(s) {
            if r := utf16.DecodeRune(c, rune(s[i+1])); r != unicode.ReplacementChar {
                out = append(out, r)
                i++
                continue
            }
        }
        out = append(out, c)
    }
    return out
}

// SplitSurrogates is the inverse of JoinSurrogates.
func SplitSurrogates(cs []rune) []uint16 {
    out := make([]uint16, 0, len(cs))
    for _, c := range cs {
        if c >= 0x10000 {
            r1, r2 := utf16.EncodeRune(c)
            out = append(out, uint16(r1), uint16(r2))
            continue
        }
        out = append(out, uint16(c))
    }
    return out
}

// WriteUTF16 writes UTF-16 text, combining surrogate pairs first.
func (w *Writer) WriteUTF16(s []uint16) {
    cs := JoinSurrogates(s)
    w.WriteLen(len(cs))
    for _, c := range cs {
        w.WriteChar(c)
    }
}

// ReadUTF16 reads text written by WriteUTF16 and re-splits code points
// above the BMP into surrogate pairs.
func (r *Reader) ReadUTF16() []uint16 {
    n := r.ReadLen()
    if r.err != nil { return nil }
    if n > r.MaxBytes {
        r.malformed("string of %d chars exceeds limit %d", n, r.MaxBytes)
        return nil
    }
    cs := make([]rune, 0, min(n, preallocLimit))
    for i := 0; i < n; i++ {
        c := r.ReadChar()
        if r.err != nil { return nil }
        cs = append(cs, c)
    }
    return SplitSurrogates(cs)
}

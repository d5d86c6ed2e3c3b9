package source

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// xmlDeclEncoding matches the encoding pseudo-attribute of an XML declaration.
var xmlDeclEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?\sencoding\s*=\s*)(["'])([A-Za-z0-9._:-]+)(["'])`)

// ToUTF8 decodes data to UTF-8.
//
// The charset is taken, in order, from a byte order mark, the charset
// parameter of contentType, and the encoding of the XML declaration. Without
// any of these, valid UTF-8 is kept as is and anything else is decoded with
// the HTML5 sniffing rules (usually windows-1252). A declared encoding is
// rewritten to UTF-8 so the text describes itself correctly.
func ToUTF8(data []byte, contentType string) (string, error) {
	enc, name, err := detect(data, contentType)
	if err != nil {
		return "", err
	}

	out := data
	if enc != nil {
		out, err = enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", errors.Errorf("decode %s: %w", name, err)
		}
	}
	out = bytes.TrimPrefix(out, []byte("\ufeff"))
	return rewriteDeclaration(string(out)), nil
}

// detect returns nil when data can be used without conversion.
func detect(data []byte, contentType string) (encoding.Encoding, string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return nil, "utf-8", nil
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), "utf-16be", nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), "utf-16le", nil
	}

	label := contentTypeCharset(contentType)
	if label == "" {
		label = declaredEncoding(data)
	}
	if label == "" {
		if utf8.Valid(data) {
			return nil, "utf-8", nil
		}
		enc, name, _ := charset.DetermineEncoding(data, "")
		return enc, name, nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", errors.Errorf("unsupported charset %q", label)
	}
	if name == "utf-8" {
		return nil, name, nil
	}
	return enc, name, nil
}

func contentTypeCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func declaredEncoding(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := xmlDeclEncoding.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[3])
}

func rewriteDeclaration(text string) string {
	loc := xmlDeclEncoding.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	// loc[6]:loc[7] is the encoding name.
	return text[:loc[6]] + "UTF-8" + text[loc[7]:]
}

package guild

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	validName = regexp.MustCompile(`^[\p{L}\p{N}\s\-_\.]+$`)
	validTag  = regexp.MustCompile(`^[\p{L}\p{N}\-_]+$`)
)

// validateName returns the NFC form of name, or a Validation result.
// Checks run in a fixed order so the reported reason is deterministic.
func (s *Service) validateName(name string) (string, Result) {
	name = norm.NFC.String(name)
	if strings.TrimSpace(name) == "" {
		return "", fail(KindValidation, ErrMsgNameEmpty)
	}
	if strings.TrimSpace(name) != name {
		return "", fail(KindValidation, ErrMsgNameWhitespace)
	}
	if !validName.MatchString(name) {
		return "", fail(KindValidation, ErrMsgNameInvalidChars)
	}
	n := utf8.RuneCountInString(name)
	if n < s.cfg.MinNameLength {
		return "", fail(KindValidation, ErrMsgNameTooShort).With("min", s.cfg.MinNameLength)
	}
	if n > s.cfg.MaxNameLength {
		return "", fail(KindValidation, ErrMsgNameTooLong).With("max", s.cfg.MaxNameLength)
	}
	return name, success("")
}

func (s *Service) validateTag(tag string) (string, Result) {
	tag = norm.NFC.String(tag)
	if strings.TrimSpace(tag) == "" {
		return "", fail(KindValidation, ErrMsgTagEmpty)
	}
	if !validTag.MatchString(tag) {
		return "", fail(KindValidation, ErrMsgTagInvalidChars)
	}
	if utf8.RuneCountInString(tag) > s.cfg.MaxTagLength {
		return "", fail(KindValidation, ErrMsgTagTooLong).With("max", s.cfg.MaxTagLength)
	}
	return tag, success("")
}

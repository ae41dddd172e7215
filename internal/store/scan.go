package store

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

type scanner interface {
	Scan(dest ...any) error
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

func sortByName[T any](list []T, key func(T) (string, string)) {
	sort.Slice(list, func(i, j int) bool {
		ni, idi := key(list[i])
		nj, idj := key(list[j])
		if li, lj := strings.ToLower(ni), strings.ToLower(nj); li != lj {
			return li < lj
		}
		return idi < idj
	})
}

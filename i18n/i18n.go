// Package i18n translates doclate's own command-line messages.
//
// Catalogs are gettext .po files embedded from
// locales/<lang>/LC_MESSAGES/doclate.po. Messages without a catalog for
// the user's locale are printed in English.
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed locales
var catalogs embed.FS

const domain = "doclate"

var active *gotext.Locale

// Init activates the catalog for lang. An empty lang is taken from
// DOCLATE_LANG, then from the usual gettext locale variables. When no
// embedded catalog matches, T and N return their arguments.
func Init(lang string) {
	active = nil
	tag := resolve(lang)
	if tag == "" {
		return
	}
	l := gotext.NewLocaleFSWithPath(tag, catalogs, "locales")
	l.AddDomain(domain)
	active = l
}

// T returns the translation of msgid.
func T(msgid string) string {
	if active == nil {
		return msgid
	}
	return active.GetD(domain, msgid)
}

// N returns the plural form of singular/plural matching n.
func N(singular, plural string, n int) string {
	if active == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return active.GetND(domain, singular, plural, n)
}

// resolve returns the first embedded catalog matching lang or the
// environment, or "" when none does.
func resolve(lang string) string {
	for _, want := range preferred(lang) {
		for _, tag := range []string{want, baseLanguage(want)} {
			if hasCatalog(tag) {
				return tag
			}
		}
	}
	return ""
}

// preferred lists the requested locales, most wanted first. LANGUAGE may
// name several, separated by colons.
func preferred(lang string) []string {
	var raw []string
	if lang != "" {
		raw = []string{lang}
	} else {
		raw = append(raw, os.Getenv("DOCLATE_LANG"))
		raw = append(raw, strings.Split(os.Getenv("LANGUAGE"), ":")...)
		for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
			raw = append(raw, os.Getenv(env))
		}
	}

	var out []string
	for _, v := range raw {
		// ru_RU.UTF-8@euro -> ru_RU
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "_-"); i > 0 {
		return tag[:i]
	}
	return tag
}

func hasCatalog(tag string) bool {
	_, err := fs.Stat(catalogs, path.Join("locales", tag, "LC_MESSAGES", domain+".po"))
	return err == nil
}

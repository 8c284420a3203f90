package application

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// localeFormatter renders amounts and dates for user-facing text.
type localeFormatter struct {
	printer *message.Printer
}

// newLocaleFormatter parses locale as a BCP 47 tag; anything unparseable
// falls back to Spanish.
func newLocaleFormatter(locale string) *localeFormatter {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		tag = language.Spanish
	}
	return &localeFormatter{printer: message.NewPrinter(tag)}
}

// Money formats v with two decimals and locale grouping, e.g. "$12.500,00".
func (f *localeFormatter) Money(v float64) string {
	return "$" + f.printer.Sprint(number.Decimal(v, number.Scale(2)))
}

// Date formats t as day/month/year.
func (f *localeFormatter) Date(t time.Time) string {
	return t.Format("02/01/2006")
}

// DateTime formats t as day/month/year hour:minute.
func (f *localeFormatter) DateTime(t time.Time) string {
	return t.Format("02/01/2006 15:04")
}

package repository

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"crm-ai-agent/domain"
)

var errUnsupportedEntity = errors.New("unsupported entity")

// searchableFields lists the text the substring search looks at.
func searchableFields(rec domain.Record) []string {
	switch v := rec.(type) {
	case *domain.Client:
		return []string{v.Name, v.Email, v.Notes}
	case *domain.Event:
		return []string{v.Title, v.Notes}
	case *domain.Quote:
		return []string{v.Number, v.Notes}
	case *domain.Room:
		return []string{v.Name}
	case *domain.Product:
		return []string{v.Name, v.Category, v.Description, v.SKU}
	}
	return nil
}

// sortKey is the start date for events, the creation time otherwise.
func sortKey(rec domain.Record, q domain.ListQuery) time.Time {
	if e, ok := rec.(*domain.Event); ok && !q.ByCreation {
		return e.StartDate
	}
	return rec.Created()
}

// compareQuoteNumbers orders PREFIX-YEAR-NNN numbers by their trailing
// sequence, so "COT-2026-1000" sorts after "COT-2026-999".
func compareQuoteNumbers(a, b string) int {
	if b == "" {
		if a == "" {
			return 0
		}
		return 1
	}
	na, nb := quoteSequence(a), quoteSequence(b)
	switch {
	case na > nb:
		return 1
	case na < nb:
		return -1
	}
	return strings.Compare(a, b)
}

func quoteSequence(number string) int {
	i := strings.LastIndex(number, "-")
	n, err := strconv.Atoi(number[i+1:])
	if err != nil {
		return -1
	}
	return n
}

package controllers

import (
	"errors"
	"strconv"
	"strings"
)

// errInvalidPage means the requested page number is malformed or out of range.
var errInvalidPage = errors.New("invalid page")

// Page describes one page of a listing.
type Page struct {
	Number         int
	NumPages       int
	Total          int64
	PerPage        int
	HasPrevious    bool
	HasNext        bool
	PreviousNumber int
	NextNumber     int
}

// Offset is the index of the first row on the page.
func (p *Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// paginate resolves the ?page= value against total rows. The value may be a
// number or "last"; an empty listing still has a first page.
func paginate(raw string, total int64, perPage int) (*Page, error) {
	if perPage <= 0 {
		perPage = 10
	}
	numPages := int((total + int64(perPage) - 1) / int64(perPage))
	if numPages == 0 {
		numPages = 1
	}

	number := 1
	switch raw = strings.TrimSpace(raw); raw {
	case "":
	case "last":
		number = numPages
	default:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > numPages {
			return nil, errInvalidPage
		}
		number = n
	}

	return &Page{
		Number:         number,
		NumPages:       numPages,
		Total:          total,
		PerPage:        perPage,
		HasPrevious:    number > 1,
		HasNext:        number < numPages,
		PreviousNumber: number - 1,
		NextNumber:     number + 1,
	}, nil
}

package dashboard

// PageSize is the fixed page length of the analysis browser.
const PageSize = 10

// Pagination is the cursor of the analysis browser.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

// TotalPages returns ceil(TotalCount / PageSize).
func (p Pagination) TotalPages() int {
	return TotalPages(p.TotalCount, p.PageSize)
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool {
	return p.Page > 1
}

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool {
	return p.Page < p.TotalPages()
}

// TotalPages returns the number of pages needed for totalCount items.
func TotalPages(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}

// ClampPage keeps page within [1, max(1, totalPages)].
func ClampPage(page, totalPages int) int {
	upper := totalPages
	if upper < 1 {
		upper = 1
	}
	if page < 1 {
		return 1
	}
	if page > upper {
		return upper
	}
	return page
}

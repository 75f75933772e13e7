package navigation

// Page is one fixed-size window over an ordered sequence. Items [Start, End) are
// shown.
type Page struct {
	Start   int
	End     int
	Page    int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate splits total items into pages of pageSize and returns the window for
// page, clamped into [0, pages-1]. An empty sequence has zero pages and an empty
// window on page 0.
func Paginate(total, pageSize, page int) Page {
	if pageSize < 1 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}
	pages := (total + pageSize - 1) / pageSize
	page = clampPage(page, pages)

	start := page * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return Page{
		Start:   start,
		End:     end,
		Page:    page,
		Pages:   pages,
		HasPrev: page > 0,
		HasNext: end < total,
	}
}

func clampPage(page, pages int) int {
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

package adapter

import "context"

// Page is one page of raw rows returned by a paginated upstream API, plus
// the total row count the API reports (if any).
type Page[T any] struct {
	Rows  []T
	Total int // upstream-reported total; 0 if the API never reports one
}

// FetchPage retrieves a single page at the given offset.
type FetchPage[T any] func(ctx context.Context, offset, pageSize int) (Page[T], error)

// Paginate loops fetch until a page returns fewer than pageSize items or the
// cumulative offset reaches the upstream-reported total.
func Paginate[T any](ctx context.Context, pageSize int, fetch FetchPage[T]) ([]T, error) {
	var all []T
	offset := 0
	for {
		page, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)
		offset += pageSize

		if len(page.Rows) < pageSize {
			break
		}
		if page.Total > 0 && offset >= page.Total {
			break
		}
	}
	return all, nil
}

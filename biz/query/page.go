package query

// Pageable 分页请求，Page 从 0 开始
type Pageable struct {
	Page int
	Size int
	Sort Sort
}

// PageRequest 创建分页请求
func PageRequest(page, size int, sort ...Order) *Pageable {
	return &Pageable{Page: page, Size: size, Sort: ByOrders(sort...)}
}

// Offset 当前页的起始偏移
func (p *Pageable) Offset() int64 {
	return int64(p.Page) * int64(p.Size)
}

// Next 下一页
func (p *Pageable) Next() *Pageable {
	return &Pageable{Page: p.Page + 1, Size: p.Size, Sort: p.Sort}
}

// Pagination 是驱动层的分页参数
type Pagination struct {
	Offset int64
	Limit  int64
}

// LimitPagination 计算分页参数，切片多取一条用于判断下一页。
// maxResults 大于 0 时（First/TopN）不会读取超出该数量的记录。
func LimitPagination(pageable *Pageable, maxResults int, forSlice bool) *Pagination {
	if pageable == nil {
		return nil
	}
	limit := int64(pageable.Size)
	if forSlice {
		limit++
	}
	if maxResults > 0 {
		remaining := int64(maxResults) - pageable.Offset()
		if remaining < 0 {
			remaining = 0
		}
		limit = min(limit, remaining)
	}
	return &Pagination{Offset: pageable.Offset(), Limit: limit}
}

// Page 分页结果，Total 来自计数查询
type Page[T any] struct {
	Content  []T
	Pageable *Pageable
	Total    int64
}

// NewPage 构建分页结果。当前页不满时总数可由内容推断，无需计数查询。
func NewPage[T any](content []T, pageable *Pageable, total func() (int64, error)) (*Page[T], error) {
	page := &Page[T]{Content: content, Pageable: pageable}
	if pageable == nil {
		page.Total = int64(len(content))
		return page, nil
	}
	if pageable.Offset() == 0 && len(content) < pageable.Size {
		page.Total = int64(len(content))
		return page, nil
	}
	if len(content) != 0 && len(content) < pageable.Size {
		page.Total = pageable.Offset() + int64(len(content))
		return page, nil
	}
	n, err := total()
	if err != nil {
		return nil, err
	}
	page.Total = n
	return page, nil
}

// TotalPages 总页数
func (p *Page[T]) TotalPages() int {
	if p.Pageable == nil || p.Pageable.Size == 0 {
		return 1
	}
	return int((p.Total + int64(p.Pageable.Size) - 1) / int64(p.Pageable.Size))
}

// HasNext 是否还有下一页
func (p *Page[T]) HasNext() bool {
	return p.Pageable != nil && p.Pageable.Page+1 < p.TotalPages()
}

// Slice 不带总数的分页结果，HasNext 通过多取一条记录判断
type Slice[T any] struct {
	Content  []T
	Pageable *Pageable
	HasNext  bool
}

// NewSlice 截断多取的一条记录
func NewSlice[T any](content []T, pageable *Pageable) *Slice[T] {
	size := len(content)
	if pageable != nil {
		size = pageable.Size
	}
	hasNext := len(content) > size
	if hasNext {
		content = content[:size]
	}
	return &Slice[T]{Content: content, Pageable: pageable, HasNext: hasNext}
}

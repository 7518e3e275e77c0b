package pagination

import (
	"fmt"
	"strconv"

	"ringring-backend/pkg/constants"
)

// Params represents parsed pagination query parameters
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// ParseParams parses page and limit query values. Empty values take the
// defaults; out-of-range values are clamped rather than rejected.
func ParseParams(pageStr, limitStr string) (*Params, error) {
	page := 1
	limit := constants.DefaultPageSize

	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		if p > 1 {
			page = p
		}
	}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		limit = ClampLimit(l)
	}

	return &Params{
		Page:   page,
		Limit:  limit,
		Offset: CalculateOffset(page, limit),
	}, nil
}

// ClampLimit bounds limit to [MinPageSize, MaxPageSize]
func ClampLimit(limit int) int {
	switch {
	case limit < constants.MinPageSize:
		return constants.MinPageSize
	case limit > constants.MaxPageSize:
		return constants.MaxPageSize
	default:
		return limit
	}
}

// CalculateOffset calculates offset from page and limit
func CalculateOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// CalculateTotalPages returns ceil(total/limit)
func CalculateTotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}
	return totalPages
}

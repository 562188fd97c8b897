package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/domain"
)

// ListStamp fingerprints a filtered product list: how many rows match and the
// newest UpdatedAt among them. Comment and like writes touch their product's
// UpdatedAt, so the stamp moves whenever a projected list would.
type ListStamp struct {
	Count  int64
	Latest time.Time // zero when Count is 0
}

// ETag renders the stamp as a weak entity tag. viewer is folded in because
// projections differ per caller (is_liked).
func (s ListStamp) ETag(f ProductFilter, viewer string) string {
	return fmt.Sprintf(`W/"products:%s:%s:%s:%d:%d"`,
		f.CategorySlug, f.GroupSlug, viewer, s.Count, s.Latest.UnixNano())
}

// StampProducts computes the ListStamp for f.
func StampProducts(ctx context.Context, db *gorm.DB, f ProductFilter) (ListStamp, error) {
	scoped := func() *gorm.DB {
		return f.apply(db.WithContext(ctx).Model(&domain.Product{}))
	}

	var st ListStamp
	if err := scoped().Count(&st.Count).Error; err != nil {
		return ListStamp{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	// ordered pick rather than MAX(): SQLite returns MAX over datetimes as text
	var newest struct{ UpdatedAt time.Time }
	err := scoped().Select("products.updated_at").
		Order("products.updated_at DESC").
		Limit(1).
		Scan(&newest).Error
	if err != nil {
		return ListStamp{}, err
	}
	st.Latest = newest.UpdatedAt
	return st, nil
}

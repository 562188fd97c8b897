package cache

// Key layout:
//
//	catalog:products:list:c=<category>:g=<group>
//	catalog:products:detail:<slug>
//
// Slugs never contain ':' so the layout is unambiguous; an absent filter is
// the empty string, which keeps the unfiltered list under its own key.
const (
	ProductPrefix       = "catalog:products:"
	productListPrefix   = ProductPrefix + "list:"
	productDetailPrefix = ProductPrefix + "detail:"
)

// Key classes, used for TTL selection and metric labels.
const (
	ClassList   = "list"
	ClassDetail = "detail"
)

// ListKey returns the cache key for a product listing filtered by the
// optional category and group slugs.
func ListKey(categorySlug, groupSlug string) string {
	return productListPrefix + "c=" + categorySlug + ":g=" + groupSlug
}

// DetailKey returns the cache key for a single product.
func DetailKey(productSlug string) string {
	return productDetailPrefix + productSlug
}

// AffectedListKeys returns every list key under which a product living in
// (categorySlug, groupSlug) can appear: unfiltered, category only, group
// only, and both.
func AffectedListKeys(categorySlug, groupSlug string) []string {
	return []string{
		ListKey("", ""),
		ListKey(categorySlug, ""),
		ListKey("", groupSlug),
		ListKey(categorySlug, groupSlug),
	}
}

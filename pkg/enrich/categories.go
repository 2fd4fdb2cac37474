package enrich

import (
	"strings"

	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
)

// Commerce reserves id 1 for the root catalog and id 2 for the default root
// category. Neither carries a name customers would recognize, so both are
// excluded from breadcrumbs.
const (
	rootCatalogID       = 1
	defaultRootCategory = 2
)

// CategoryMap maps category id to its metadata. It is built once per run (or
// served from the cache) and read-only afterwards.
type CategoryMap map[int64]commerce.Category

// Covers reports whether every id is present in the map.
func (m CategoryMap) Covers(ids []int64) bool {
	for _, id := range ids {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}

// Resolve returns the category path for id. The second return is false when
// the id is absent from the map.
func (m CategoryMap) Resolve(id int64) (CategoryPath, bool) {
	cat, ok := m[id]
	if !ok {
		return CategoryPath{}, false
	}
	return CategoryPath{
		ID:         cat.ID,
		Name:       cat.Name,
		Breadcrumb: m.Breadcrumb(id),
	}, true
}

// Breadcrumb joins the names along the category's Path with "/", the same
// shape Commerce uses for its own catalog export. Root ids are excluded and
// ancestors missing from the map are skipped rather than breaking the chain.
func (m CategoryMap) Breadcrumb(id int64) string {
	cat, ok := m[id]
	if !ok {
		return ""
	}

	pathIDs := cat.PathIDs()
	names := make([]string, 0, len(pathIDs))
	for _, pid := range pathIDs {
		if pid == rootCatalogID || pid == defaultRootCategory {
			continue
		}
		if ancestor, found := m[pid]; found {
			names = append(names, ancestor.Name)
		}
	}
	if len(names) == 0 {
		return cat.Name
	}
	return strings.Join(names, "/")
}

// missingAncestors collects ids referenced by Path strings that are neither
// in the map nor already requested. Root ids are never backfilled.
func (m CategoryMap) missingAncestors(requested map[int64]struct{}) []int64 {
	var missing []int64
	seen := make(map[int64]struct{})
	for _, cat := range m {
		for _, pid := range cat.PathIDs() {
			if pid == rootCatalogID || pid == defaultRootCategory {
				continue
			}
			if _, ok := m[pid]; ok {
				continue
			}
			if _, ok := requested[pid]; ok {
				continue
			}
			if _, ok := seen[pid]; ok {
				continue
			}
			seen[pid] = struct{}{}
			missing = append(missing, pid)
		}
	}
	return missing
}

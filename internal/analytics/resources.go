package analytics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"exportsite/internal/pageviews"
)

// ResourceCountResult is a viewed business entity. Name comes from the
// ResourceNamer and falls back to the slug, then the id.
type ResourceCountResult struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Slug         string `json:"slug,omitempty"`
	Name         string `json:"name"`
	Count        int64  `json:"count"`
}

// ResourceNamer looks up display names for resource ids. Missing ids are
// simply absent from the returned map.
type ResourceNamer interface {
	ResourceNames(ctx context.Context, resourceType string, ids []string) (map[string]string, error)
}

// TopResources ranks DYNAMIC views of params.ResourceType (every type when
// empty) by resource id, or by slug for rows that carry no id.
func TopResources(db *gorm.DB, params QueryParams, namer ResourceNamer) ([]ResourceCountResult, error) {
	var rows []struct {
		ResourceType string
		ResourceKey  string
		ResourceID   string
		ResourceSlug string
		Views        int64
	}

	query := `
    SELECT
        resource_type,
        COALESCE(NULLIF(resource_id, ''), resource_slug) AS resource_key,
        MAX(resource_id) AS resource_id,
        MAX(resource_slug) AS resource_slug,
        COUNT(*) AS views
    FROM page_views
    WHERE created_at BETWEEN ? AND ?
    AND page_type = ?
    AND (? = '' OR resource_type = ?)
    AND (resource_id <> '' OR resource_slug <> '')
    GROUP BY resource_type, COALESCE(NULLIF(resource_id, ''), resource_slug)
    ORDER BY views DESC, resource_key ASC
    LIMIT ?
    `

	err := db.Raw(query,
		params.From.UTC(),
		params.To.UTC(),
		pageviews.PageTypeDynamic,
		params.ResourceType,
		params.ResourceType,
		params.limit(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching top resources: %w", err)
	}

	names := map[string]map[string]string{}
	if namer != nil && len(rows) > 0 {
		idsByType := map[string][]string{}
		for _, r := range rows {
			if r.ResourceID != "" {
				idsByType[r.ResourceType] = append(idsByType[r.ResourceType], r.ResourceID)
			}
		}
		for resourceType, ids := range idsByType {
			found, err := namer.ResourceNames(db.Statement.Context, resourceType, ids)
			if err != nil {
				return nil, fmt.Errorf("error naming %s resources: %w", resourceType, err)
			}
			names[resourceType] = found
		}
	}

	results := make([]ResourceCountResult, len(rows))
	for i, r := range rows {
		name := names[r.ResourceType][r.ResourceID]
		if name == "" {
			name = r.ResourceSlug
		}
		if name == "" {
			name = r.ResourceID
		}
		results[i] = ResourceCountResult{
			ResourceType: r.ResourceType,
			ID:           r.ResourceID,
			Slug:         r.ResourceSlug,
			Name:         name,
			Count:        r.Views,
		}
	}
	return results, nil
}

// TableResourceNamer reads id/name pairs from the table configured for
// each resource type, e.g. product -> products.
type TableResourceNamer struct {
	db     *gorm.DB
	tables map[string]string
}

func NewTableResourceNamer(db *gorm.DB, tables map[string]string) *TableResourceNamer {
	copied := make(map[string]string, len(tables))
	for k, v := range tables {
		copied[k] = v
	}
	return &TableResourceNamer{db: db, tables: copied}
}

// ResourceNames returns an empty map for unconfigured types and for tables
// that do not exist in this database.
func (n *TableResourceNamer) ResourceNames(ctx context.Context, resourceType string, ids []string) (map[string]string, error) {
	names := map[string]string{}
	table, ok := n.tables[resourceType]
	if !ok || table == "" || len(ids) == 0 {
		return names, nil
	}

	db := n.db.WithContext(ctx)
	if !db.Migrator().HasTable(table) {
		return names, nil
	}

	var rows []struct {
		ID   string
		Name string
	}
	err := db.Table(table).
		Select("CAST(id AS TEXT) AS id, name").
		Where("CAST(id AS TEXT) IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s names: %w", table, err)
	}

	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

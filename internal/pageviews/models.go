package pageviews

import (
	"strings"
	"time"

	"exportsite/internal/pkg/geoip"
)

// PageType distinguishes fixed marketing pages from resource detail pages.
type PageType string

const (
	PageTypeStatic  PageType = "STATIC"
	PageTypeDynamic PageType = "DYNAMIC"
)

// ParsePageType accepts any casing and returns false for unknown values.
func ParsePageType(s string) (PageType, bool) {
	switch PageType(strings.ToUpper(strings.TrimSpace(s))) {
	case PageTypeStatic:
		return PageTypeStatic, true
	case PageTypeDynamic:
		return PageTypeDynamic, true
	default:
		return "", false
	}
}

// PageView is one recorded visit to one route. Rows are append-only.
type PageView struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Path         string    `gorm:"size:2048;index;not null" json:"path"`
	PageName     string    `gorm:"size:255;index" json:"pageName"`
	PageType     PageType  `gorm:"size:16;index:idx_page_views_resource;not null;default:STATIC" json:"pageType"`
	ResourceType string    `gorm:"size:255;index:idx_page_views_resource" json:"resourceType,omitempty"`
	ResourceID   string    `gorm:"size:255;index:idx_page_views_resource" json:"resourceId,omitempty"`
	ResourceSlug string    `gorm:"size:255" json:"resourceSlug,omitempty"`
	IPAddress    string    `gorm:"size:64" json:"ipAddress"`
	Country      string    `gorm:"size:255;index" json:"country,omitempty"`
	Region       string    `gorm:"size:255" json:"region,omitempty"`
	City         string    `gorm:"size:255" json:"city,omitempty"`
	UserAgent    string    `gorm:"size:512" json:"userAgent,omitempty"`
	Referer      string    `gorm:"size:2048" json:"referer,omitempty"`
	Device       string    `gorm:"size:32;not null;default:unknown" json:"device"`
	Browser      string    `gorm:"size:32;not null;default:unknown" json:"browser"`
	OS           string    `gorm:"column:os;size:32;not null;default:unknown" json:"os"`
	SessionID    string    `gorm:"size:64;index" json:"sessionId"`
	CreatedAt    time.Time `gorm:"index;not null" json:"createdAt"`
}

// ApplyLocation copies a resolver result onto the event. Geo fields are
// either all taken from loc or all left empty.
func (p *PageView) ApplyLocation(loc geoip.Location) {
	if loc.IsEmpty() {
		p.Country, p.Region, p.City = "", "", ""
		return
	}
	p.Country, p.Region, p.City = loc.Country, loc.Region, loc.City
}

// IsResourceView reports whether the event points at a business entity.
func (p *PageView) IsResourceView() bool {
	return p.PageType == PageTypeDynamic
}

// Package views renders the HTML status board.
//
// Markup lives in status.templ; run `templ generate` after editing it.
package views

import (
	"github.com/jusunglee/mta-arrivals/internal/models"
)

// RefreshSeconds is how often the board reloads itself
const RefreshSeconds = 30

const defaultTitle = "Subway Arrivals"

// StatusPageData is everything the status board needs
type StatusPageData struct {
	Title  string
	Query  string
	Result models.StatusResult
}

func (d StatusPageData) title() string {
	if d.Title == "" {
		return defaultTitle
	}
	return d.Title
}

func bulletStyle(status models.RouteStatus) map[string]string {
	return map[string]string{
		"background": status.Color,
		"color":      status.TextColor,
	}
}

func noDataLabel(d models.DirectionStatus) string {
	if d.Status == "" {
		return models.StatusNoData
	}
	return d.Status
}

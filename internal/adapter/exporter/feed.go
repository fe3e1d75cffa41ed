package exporter

import (
	"github.com/hive-corporation/actionables/internal/core/domain"
)

// Feed renders indicators for downstream consumers.
type Feed interface {
	ContentType() string
	Render(views []domain.IndicatorView) ([]byte, error)
}

// FeedByName resolves "stix" or "cef".
func FeedByName(name string) (Feed, bool) {
	switch name {
	case "stix", "stix2":
		return NewSTIXFeed(), true
	case "cef":
		return CEFFeed{}, true
	}
	return nil, false
}

// feedable keeps active indicators not flagged as false positives.
func feedable(views []domain.IndicatorView) []domain.IndicatorView {
	out := make([]domain.IndicatorView, 0, len(views))
	for _, v := range views {
		if v.Status == nil || !v.Status.Active || v.Status.FalsePositive {
			continue
		}
		out = append(out, v)
	}
	return out
}

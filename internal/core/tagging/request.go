package tagging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

var (
	ErrUnknownAction       = errors.New("unknown tag action")
	ErrContextTagInContext = errors.New("context tags cannot be added inside another context")
	ErrReasonRequired      = errors.New("a reason is required to remove tags")
	ErrTargetExists        = errors.New("target name already exists")
	ErrNoTags              = errors.New("no tags given")
	ErrNoContext           = errors.New("no context given for the tags")
)

// BulkInput is the raw bulk action request of the front end.
type BulkInput struct {
	Action      string
	Objects     []int64
	Tags        []string
	CurrContext string
	Comment     string
	Kind        domain.TargetKind
	User        string
}

// BulkRequest is a validated bulk tag action.
type BulkRequest struct {
	Action    domain.TagAction
	Tags      []domain.TagRef
	TargetIDs []int64
	Kind      domain.TargetKind
	User      string
	Comment   string
	// SuppressExternalSync keeps the change from being mirrored onto
	// fact tags. Set when the change itself came from fact tags.
	SuppressExternalSync bool
}

// ParseBulkRequest validates a front-end request. Tags may be given as
// separate entries or comma separated; they are trimmed and blanks dropped.
func (m *ContextMatcher) ParseBulkRequest(in BulkInput) (BulkRequest, error) {
	action, ok := domain.ParseTagAction(in.Action)
	if !ok {
		return BulkRequest{}, fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
	}

	names := domain.Set{}
	for _, t := range in.Tags {
		for _, part := range strings.Split(t, domain.TagSeparator) {
			names.Add(part)
		}
	}

	ctxName := strings.TrimSpace(in.CurrContext)
	req := BulkRequest{
		Action:    action,
		TargetIDs: in.Objects,
		Kind:      in.Kind,
		User:      in.User,
		Comment:   strings.TrimSpace(in.Comment),
	}
	if req.Kind == "" {
		req.Kind = domain.TargetIndicator
	}

	switch action {
	case domain.TagAdd:
		for _, n := range names.Sorted() {
			if ctxName != "" && n != ctxName && m.IsContext(n) {
				return BulkRequest{}, fmt.Errorf("%w: %s in %s", ErrContextTagInContext, n, ctxName)
			}
		}
	case domain.TagRemove:
		if req.Comment == "" {
			return BulkRequest{}, ErrReasonRequired
		}
	}

	for _, n := range names.Sorted() {
		c := ctxName
		if c == "" {
			// outside a context only context names can be used; each is its own context
			if !m.IsContext(n) {
				return BulkRequest{}, fmt.Errorf("%w: %s", ErrNoContext, n)
			}
			c = n
		}
		req.Tags = append(req.Tags, domain.TagRef{Context: c, Name: n})
	}
	if len(req.Tags) == 0 {
		return BulkRequest{}, ErrNoTags
	}
	return req, nil
}

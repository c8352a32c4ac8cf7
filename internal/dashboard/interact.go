package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"findash/internal/core"
	"findash/internal/selection"
)

// Views and actions accepted by Interact.
const (
	ViewList     = "list"
	ViewCategory = "category"
	ViewTimeline = "timeline"

	ActionHover = "hover"
	ActionLeave = "leave"
	ActionClick = "click"
)

// Interaction is one pointer event on a view. Target is a transaction id
// for the list, a group name for the category view and a bucket index for
// the timeline. Side picks the income or expense breakdown of the category
// view.
type Interaction struct {
	View   string      `json:"view"`
	Side   core.TxType `json:"side,omitempty"`
	Action string      `json:"action"`
	Target string      `json:"target"`
}

// Interact routes a pointer event through the matching view binding and
// returns the selection right after it. Hover updates are debounced, so
// the returned preview may not include them yet.
func (m *Monitor) Interact(ctx context.Context, in Interaction) (selection.Snapshot, error) {
	s := m.session()
	var err error
	switch strings.ToLower(in.View) {
	case ViewList:
		err = m.interactList(s, in)
	case ViewCategory:
		err = m.interactCategory(s, in)
	case ViewTimeline:
		err = m.interactTimeline(ctx, s, in)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownView, in.View)
	}
	if err != nil {
		return selection.Snapshot{}, err
	}
	return s.store.Snapshot(), nil
}

func (m *Monitor) interactList(s session, in Interaction) error {
	v, err := NewListView(s.store, s.data)
	if err != nil {
		return err
	}
	switch strings.ToLower(in.Action) {
	case ActionHover:
		v.Hover(in.Target)
	case ActionLeave:
		v.Leave()
	case ActionClick:
		v.Click(in.Target)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
	}
	return nil
}

func (m *Monitor) interactCategory(s session, in Interaction) error {
	income, expense, err := m.categoryViews(s)
	if err != nil {
		return err
	}
	var v *CategoryView
	switch in.Side {
	case core.Income:
		v = income
	case core.Expense:
		v = expense
	default:
		return fmt.Errorf("%w: category side %q", ErrUnknownTarget, in.Side)
	}
	switch strings.ToLower(in.Action) {
	case ActionHover:
		return v.Hover(in.Target)
	case ActionLeave:
		v.Leave()
		return nil
	case ActionClick:
		return v.Click(in.Target)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
}

func (m *Monitor) interactTimeline(ctx context.Context, s session, in Interaction) error {
	action := strings.ToLower(in.Action)
	if action == ActionLeave {
		s.store.ClearPreview()
		return nil
	}
	if action != ActionHover && action != ActionClick {
		return fmt.Errorf("%w: %q", ErrUnknownAction, in.Action)
	}
	_, buckets, err := m.timeline(ctx, s)
	if err != nil {
		return err
	}
	v, err := NewTimelineView(s.store, s.data, buckets)
	if err != nil {
		return err
	}
	if action == ActionHover {
		return v.Hover(in.Target)
	}
	return v.Click(in.Target)
}

// Selection channels.
const (
	ChannelActive  = "active"
	ChannelPreview = "preview"
)

var ErrUnknownChannel = errors.New("dashboard: unknown selection channel")

// SelectionRequest replaces one channel with the transactions matching a
// single predicate. ID wins over a date range, which wins over Categories.
// Unset range bounds are open.
type SelectionRequest struct {
	ID         string    `json:"id,omitempty"`
	Start      core.Date `json:"start"`
	End        core.Date `json:"end"`
	Categories []string  `json:"categories,omitempty"`
}

var ErrEmptySelection = errors.New("dashboard: selection request has no predicate")

// openEnd stands in for an unset upper date bound.
var openEnd = core.NewDate(9999, 12, 31)

// Select applies req to the named channel over the filtered data.
func (m *Monitor) Select(channel string, req SelectionRequest) (selection.Snapshot, error) {
	s := m.session()
	var byID func(string, []core.Transaction)
	var byRange func(core.Date, core.Date, []core.Transaction)
	var byCategories func([]string, []core.Transaction)
	switch channel {
	case ChannelActive:
		byID, byRange, byCategories = s.store.SetActiveByID, s.store.SetActiveByDateRange, s.store.SetActiveByCategories
	case ChannelPreview:
		byID, byRange, byCategories = s.store.SetPreviewByID, s.store.SetPreviewByDateRange, s.store.SetPreviewByCategories
	default:
		return selection.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	switch {
	case req.ID != "":
		byID(req.ID, s.data)
	case !req.Start.IsZero() || !req.End.IsZero():
		end := req.End
		if end.IsZero() {
			end = openEnd
		}
		byRange(req.Start, end, s.data)
	case len(req.Categories) > 0:
		byCategories(req.Categories, s.data)
	default:
		return selection.Snapshot{}, ErrEmptySelection
	}
	return s.store.Snapshot(), nil
}

// ClearSelection empties the named channel.
func (m *Monitor) ClearSelection(channel string) (selection.Snapshot, error) {
	s := m.session()
	switch channel {
	case ChannelActive:
		s.store.ClearActive()
	case ChannelPreview:
		s.store.ClearPreview()
	default:
		return selection.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return s.store.Snapshot(), nil
}

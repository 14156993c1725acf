package service

import (
	"context"
	"fmt"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/worker"
)

// Dispatcher routes a stored event to the processor owning its category.
type Dispatcher struct {
	issues   worker.Processor
	prs      worker.Processor
	activity worker.Processor
}

func NewDispatcher(issues, prs, activity worker.Processor) *Dispatcher {
	return &Dispatcher{issues: issues, prs: prs, activity: activity}
}

func (d *Dispatcher) Process(ctx context.Context, ev *model.StoredEvent) error {
	p, err := d.route(ev)
	if err != nil {
		return err
	}
	return p.Process(ctx, ev)
}

func (d *Dispatcher) Abandon(ctx context.Context, ev *model.StoredEvent, cause error) {
	p, err := d.route(ev)
	if err != nil {
		return
	}
	p.Abandon(ctx, ev, cause)
}

func (d *Dispatcher) route(ev *model.StoredEvent) (worker.Processor, error) {
	switch ev.Category {
	case model.CategoryRepoRequest, model.CategoryBug, model.CategoryFeature:
		return d.issues, nil
	case model.CategorySkillSubmission:
		return d.prs, nil
	case model.CategoryOther:
		// unlabeled issues still get analyzed
		if ev.EventType == "issues" || ev.EventType == "issue_comment" {
			return d.issues, nil
		}
		return d.activity, nil
	default:
		return nil, domain.Validation("routing event", fmt.Errorf("unknown category %q", ev.Category))
	}
}

// Package planner decomposes a user query into an execution plan of
// domain-typed steps with dependencies.
package planner

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/advisorkit/maestro/pkg/models"
)

// Extractor is the optional LLM-assisted analysis collaborator. A nil
// Extractor (or a failing one) leaves keyword detection in charge.
type Extractor interface {
	Extract(ctx context.Context, query string) (*models.PlanAnalysis, error)
}

// Planner builds execution plans.
type Planner struct {
	extractor Extractor
}

// New creates a planner. extractor may be nil.
func New(extractor Extractor) *Planner {
	return &Planner{extractor: extractor}
}

// Context carries session knowledge into planning.
type Context struct {
	Timezone string
	// RecentMemories carries recalled memory text; Plan does not read it.
	RecentMemories []string
}

var (
	calendarWords = regexp.MustCompile(`(?i)\b(meeting|appointment|calendar|schedule|reschedule)\b`)
	taskWords     = regexp.MustCompile(`(?i)\b(tasks?|todos?|to-dos?|remind)\b`)
	workflowWords = regexp.MustCompile(`(?i)\b(workflow|process)\b`)
	selfWords     = regexp.MustCompile(`\b(me|myself|I)\b`)

	// personPattern matches "with John", "for John Smith", etc.
	personPattern = regexp.MustCompile(`\b(?:with|for)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

	durationPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
	datePattern     = regexp.MustCompile(`(?i)\b(today|tomorrow|yesterday|next\s+\w+|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}(:\d{2})?\s*(am|pm))\b`)
	locationPattern = regexp.MustCompile(`(?i)\b(?:at|in)\s+(?:the\s+)?(office|zoom|teams|conference room\s*\w*)\b`)
)

// stopNames are capitalized words the person pattern must not treat as
// names.
var stopNames = map[string]struct{}{
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {}, "Friday": {},
	"Saturday": {}, "Sunday": {}, "Today": {}, "Tomorrow": {}, "January": {},
	"February": {}, "March": {}, "April": {}, "May": {}, "June": {}, "July": {},
	"August": {}, "September": {}, "October": {}, "November": {}, "December": {},
}

// Plan analyzes the query and produces a validated execution plan.
func (p *Planner) Plan(ctx context.Context, query string, pctx Context) (*models.ExecutionPlan, error) {
	analysis := p.analyze(ctx, query)

	plan := assemble(query, analysis)
	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// analyze merges keyword detection with the optional LLM extraction.
func (p *Planner) analyze(ctx context.Context, query string) *models.PlanAnalysis {
	analysis := detect(query)

	if p.extractor == nil {
		return analysis
	}
	extracted, err := p.extractor.Extract(ctx, query)
	if err != nil {
		slog.Warn("LLM extraction failed, using keyword analysis", "error", err)
		return analysis
	}
	return mergeAnalysis(analysis, extracted)
}

// detect runs the keyword heuristics.
func detect(query string) *models.PlanAnalysis {
	analysis := &models.PlanAnalysis{}

	addDomain := func(d models.Domain) {
		for _, have := range analysis.Domains {
			if have == d {
				return
			}
		}
		analysis.Domains = append(analysis.Domains, d)
	}

	if calendarWords.MatchString(query) {
		addDomain(models.DomainCalendar)
	}
	if taskWords.MatchString(query) {
		addDomain(models.DomainTask)
	}
	if workflowWords.MatchString(query) {
		addDomain(models.DomainWorkflow)
	}

	for _, m := range personPattern.FindAllStringSubmatch(query, -1) {
		name := m[1]
		if _, stop := stopNames[strings.Fields(name)[0]]; stop {
			continue
		}
		analysis.Entities = append(analysis.Entities, models.ExtractedEntity{
			Type: models.ExtractedPerson, Value: name,
		})
	}
	if m := datePattern.FindString(query); m != "" {
		analysis.Entities = append(analysis.Entities, models.ExtractedEntity{
			Type: models.ExtractedDate, Value: m,
		})
	}
	if m := durationPattern.FindString(query); m != "" {
		analysis.Entities = append(analysis.Entities, models.ExtractedEntity{
			Type: models.ExtractedDuration, Value: m,
		})
	}
	if m := locationPattern.FindStringSubmatch(query); m != nil {
		analysis.Entities = append(analysis.Entities, models.ExtractedEntity{
			Type: models.ExtractedLocation, Value: m[1],
		})
	}

	return analysis
}

// mergeAnalysis unions LLM output into the keyword analysis, keeping
// keyword hits authoritative for domains.
func mergeAnalysis(base, extracted *models.PlanAnalysis) *models.PlanAnalysis {
	have := make(map[models.Domain]struct{}, len(base.Domains))
	for _, d := range base.Domains {
		have[d] = struct{}{}
	}
	for _, d := range extracted.Domains {
		if !models.ValidDomain(d) {
			continue
		}
		if _, ok := have[d]; !ok {
			base.Domains = append(base.Domains, d)
			have[d] = struct{}{}
		}
	}

	seen := make(map[models.ExtractedEntity]struct{}, len(base.Entities))
	for _, e := range base.Entities {
		seen[e] = struct{}{}
	}
	for _, e := range extracted.Entities {
		if _, ok := seen[e]; !ok {
			base.Entities = append(base.Entities, e)
			seen[e] = struct{}{}
		}
	}
	return base
}

// assemble turns the analysis into a plan. When a person reference appears
// in a calendar/task/workflow query, a contact (or user, for
// self-references) resolution step is inserted ahead of the dependent step
// in the sequential chain. Independent domains run in parallel.
func assemble(query string, analysis *models.PlanAnalysis) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{Analysis: *analysis}

	var persons []models.ExtractedEntity
	for _, e := range analysis.Entities {
		if e.Type == models.ExtractedPerson {
			persons = append(persons, e)
		}
	}
	selfOnly := len(persons) == 0 && selfWords.MatchString(query)

	needsResolution := len(persons) > 0 || selfOnly
	resolverDomain := models.DomainContact
	if selfOnly {
		resolverDomain = models.DomainUser
	}

	if len(analysis.Domains) == 0 {
		// Non-empty query with no detected domain: a single general step.
		plan.Parallel = append(plan.Parallel, models.DomainStep{
			Domain: models.DomainGeneral, Query: query,
		})
		return plan
	}

	if !needsResolution {
		plan.Parallel = append(plan.Parallel, domainSteps(query, analysis.Domains)...)
		return plan
	}

	resolverQuery := query
	if len(persons) > 0 {
		resolverQuery = persons[0].Value
	}
	plan.Sequential = append(plan.Sequential, models.DomainStep{
		Domain: resolverDomain, Query: resolverQuery,
	})
	for _, step := range domainSteps(query, analysis.Domains) {
		step.DependsOn = []models.Domain{resolverDomain}
		plan.Sequential = append(plan.Sequential, step)
	}
	return plan
}

func domainSteps(query string, domains []models.Domain) []models.DomainStep {
	steps := make([]models.DomainStep, 0, len(domains))
	for _, d := range domains {
		steps = append(steps, models.DomainStep{Domain: d, Query: query})
	}
	return steps
}

// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"errors"

	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/data"
	"github.com/Techpire/db/internal/adapter/fieldnavigator"
)

// Projector implements [domain.Projector].
type Projector struct {
	fieldNavigator  domain.FieldNavigator
	documentFactory func(any) (domain.Document, error)
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...domain.ProjectorOption) domain.Projector {
	options := domain.ProjectorOptions{
		DocFac: data.NewDocument,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.FieldNavigator == nil {
		options.FieldNavigator = fieldnavigator.NewFieldNavigator(options.DocFac)
	}
	return &Projector{
		fieldNavigator:  options.FieldNavigator,
		documentFactory: options.DocFac,
	}
}

// plan is the normalized form of a projection map: which addresses to keep
// or drop, whether _id survives, and which of the two modes applies.
type plan struct {
	addresses [][]string
	keepID    bool
	include   bool
}

func buildPlan(nav domain.FieldNavigator, projection map[string]uint8) (plan, error) {
	id, idMentioned := projection["_id"]
	p := plan{keepID: !idMentioned || id != 0}

	var named, included int
	for field, value := range projection {
		if field == "_id" {
			continue
		}
		named++
		if value > 0 {
			included++
		}
		if included > 0 && included != named {
			return plan{}, errors.New("can't both keep and omit fields except for _id")
		}
		addr, err := nav.GetAddress(field)
		if err != nil {
			return plan{}, err
		}
		p.addresses = append(p.addresses, addr)
	}
	p.include = included != 0

	if !idMentioned && included > 1 {
		p.addresses = append(p.addresses, []string{"_id"})
	}
	return p, nil
}

// Project implements [domain.Projector].
func (p *Projector) Project(docs []domain.Document, projection map[string]uint8) ([]domain.Document, error) {
	if len(projection) == 0 {
		return docs, nil
	}

	pl, err := buildPlan(p.fieldNavigator, projection)
	if err != nil {
		return nil, err
	}

	apply := p.negativeProject
	if pl.include {
		apply = p.positiveProject
	}

	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		projected, err := apply(doc, pl.addresses)
		if err != nil {
			return nil, err
		}
		if pl.keepID {
			projected.Set("_id", doc.ID())
		} else {
			projected.Unset("_id")
		}
		res[n] = projected
	}
	return res, nil
}

// positiveProject builds a fresh document containing only the addressed
// fields, copying each field's value(s) across without touching anything
// else in the source document.
func (p *Projector) positiveProject(doc domain.Document, addresses [][]string) (domain.Document, error) {
	res, err := p.documentFactory(nil)
	if err != nil {
		return nil, err
	}

	for _, addr := range addresses {
		getters, expanded, err := p.fieldNavigator.GetField(doc, addr...)
		if err != nil {
			return nil, err
		}
		value, ok := collapseFields(getters, expanded)
		if !ok {
			continue
		}
		targets, err := p.fieldNavigator.EnsureField(res, addr...)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			target.Set(value)
		}
	}
	return res, nil
}

// collapseFields turns a navigator field-read into the single value (or
// slice of values, when the address crossed an array) that should be
// copied into a projected document; ok is false when an unexpanded field
// was never set, which means the field should be omitted entirely.
func collapseFields(getters []domain.GetSetter, expanded bool) (any, bool) {
	if !expanded {
		return getters[0].Get()
	}
	values := make([]any, len(getters))
	for n, g := range getters {
		v, _ := g.Get()
		values[n] = v
	}
	return values, true
}

// negativeProject clones the source document wholesale and strips out the
// addressed fields.
func (p *Projector) negativeProject(doc domain.Document, addresses [][]string) (domain.Document, error) {
	res, err := p.documentFactory(doc)
	if err != nil {
		return nil, err
	}
	for _, addr := range addresses {
		getters, _, err := p.fieldNavigator.GetField(res, addr...)
		if err != nil {
			return nil, err
		}
		for _, g := range getters {
			g.Unset()
		}
	}
	return res, nil
}

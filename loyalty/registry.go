/*
registry.go - Combination rule registry

PURPOSE:
  Owns the mapping from an unordered pair of discounts to the resulting
  discount. Lookup is symmetric: (A,B) and (B,A) hit the same rule
  regardless of stored order.

UNIQUENESS:
  At most one rule per unordered pair. Create rejects a duplicate pair
  with ErrAlreadyExists rather than relying on lookup precedence.
*/
package loyalty

import "context"

// Registry owns combination rules.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Create validates and persists a rule. The result discount must exist,
// be active and not be primary; both input discounts must exist and be
// active; the unordered pair must not already have a rule.
func (r *Registry) Create(ctx context.Context, rule CombinationRule) (CombinationRule, error) {
	if err := r.validate(ctx, rule); err != nil {
		return CombinationRule{}, err
	}

	if _, ok, err := r.store.FindRuleByPair(ctx, rule.FirstID, rule.SecondID); err != nil {
		return CombinationRule{}, err
	} else if ok {
		return CombinationRule{}, ErrAlreadyExists
	}

	return r.store.InsertRule(ctx, rule)
}

// Update re-validates and overwrites the rule identified by rule.ID.
// ErrNotFound when absent; a pair collision with a different rule is
// rejected with ErrAlreadyExists.
func (r *Registry) Update(ctx context.Context, rule CombinationRule) (CombinationRule, error) {
	if err := r.validate(ctx, rule); err != nil {
		return CombinationRule{}, err
	}

	if existing, ok, err := r.store.FindRuleByPair(ctx, rule.FirstID, rule.SecondID); err != nil {
		return CombinationRule{}, err
	} else if ok && existing.ID != rule.ID {
		return CombinationRule{}, ErrAlreadyExists
	}

	if err := r.store.UpdateRule(ctx, rule); err != nil {
		return CombinationRule{}, err
	}
	return rule, nil
}

func (r *Registry) validate(ctx context.Context, rule CombinationRule) error {
	result, err := r.discountFor(ctx, rule.ResultID, "result")
	if err != nil {
		return err
	}
	if result.Primary {
		return &RuleValidationError{DiscountID: rule.ResultID, Position: "result", Cause: ErrNotPrimary}
	}
	if !result.Active {
		return &RuleValidationError{DiscountID: rule.ResultID, Position: "result", Cause: ErrNotActive}
	}

	for _, leg := range []struct {
		id  DiscountID
		pos string
	}{{rule.FirstID, "first"}, {rule.SecondID, "second"}} {
		d, err := r.discountFor(ctx, leg.id, leg.pos)
		if err != nil {
			return err
		}
		if !d.Active {
			return &RuleValidationError{DiscountID: leg.id, Position: leg.pos, Cause: ErrNotActive}
		}
	}
	return nil
}

func (r *Registry) discountFor(ctx context.Context, id DiscountID, pos string) (Discount, error) {
	d, err := r.store.GetDiscount(ctx, id)
	if err != nil {
		return Discount{}, &RuleValidationError{DiscountID: id, Position: pos, Cause: ErrNotFound}
	}
	return d, nil
}

// FindByPair returns the rule for the unordered pair, if any.
func (r *Registry) FindByPair(ctx context.Context, a, b DiscountID) (CombinationRule, bool, error) {
	return r.store.FindRuleByPair(ctx, a, b)
}

// Get returns one rule denormalized with the three discount names.
func (r *Registry) Get(ctx context.Context, id RuleID) (RuleView, error) {
	rule, err := r.store.GetRule(ctx, id)
	if err != nil {
		return RuleView{}, err
	}
	return r.view(ctx, rule)
}

// List returns every rule denormalized for display.
func (r *Registry) List(ctx context.Context) ([]RuleView, error) {
	rules, err := r.store.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]RuleView, 0, len(rules))
	for _, rule := range rules {
		v, err := r.view(ctx, rule)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (r *Registry) view(ctx context.Context, rule CombinationRule) (RuleView, error) {
	v := RuleView{CombinationRule: rule}
	// A referenced discount deleted since rule creation leaves the name
	// blank instead of failing the listing.
	if d, err := r.store.GetDiscount(ctx, rule.ResultID); err == nil {
		v.ResultName = d.Name
	}
	if d, err := r.store.GetDiscount(ctx, rule.FirstID); err == nil {
		v.FirstName = d.Name
	}
	if d, err := r.store.GetDiscount(ctx, rule.SecondID); err == nil {
		v.SecondName = d.Name
	}
	return v, nil
}

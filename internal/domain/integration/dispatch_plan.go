package integration

import "fmt"

// DispatchPlan is the per-destination-store work derived from one request
type DispatchPlan struct {
	// Upserts holds the label items to create or update, by destination store
	Upserts map[string][]LabelItem
	// Deletes holds the item ids to remove, by destination store
	Deletes map[string][]string
	// Skipped counts items without stores and scopes for unmapped stores
	Skipped int
	// Errors holds one entry per scope that could not be transformed
	Errors []string

	stores []string
}

func newDispatchPlan() *DispatchPlan {
	return &DispatchPlan{
		Upserts: make(map[string][]LabelItem),
		Deletes: make(map[string][]string),
		Errors:  make([]string, 0),
	}
}

// Stores returns the destination stores with pending work, in first-seen order
func (p *DispatchPlan) Stores() []string {
	stores := make([]string, len(p.stores))
	copy(stores, p.stores)
	return stores
}

// UpsertCount returns the number of label items to upsert across all stores
func (p *DispatchPlan) UpsertCount() int {
	n := 0
	for _, items := range p.Upserts {
		n += len(items)
	}
	return n
}

// DeleteCount returns the number of item ids to delete across all stores
func (p *DispatchPlan) DeleteCount() int {
	n := 0
	for _, ids := range p.Deletes {
		n += len(ids)
	}
	return n
}

func (p *DispatchPlan) touch(store string) {
	if _, ok := p.Upserts[store]; ok {
		return
	}
	if _, ok := p.Deletes[store]; ok {
		return
	}
	p.stores = append(p.stores, store)
}

func (p *DispatchPlan) addUpsert(store string, item LabelItem) {
	p.touch(store)
	p.Upserts[store] = append(p.Upserts[store], item)
}

func (p *DispatchPlan) addDelete(store, itemID string) {
	p.touch(store)
	p.Deletes[store] = append(p.Deletes[store], itemID)
}

// GroupForDispatch partitions items into per-destination-store upserts and deletes.
//
// Items without stores and scopes for stores missing from the map are counted
// as skipped. Removed or discontinued scopes queue a delete; all other scopes
// are transformed and queued for upsert. A failed transform is recorded and
// processing continues. Scopes are handled independently in encounter order,
// so the same item may be queued more than once for a store.
func GroupForDispatch(items []PosItem, stores StoreMap, transformer *LabelTransformer) *DispatchPlan {
	plan := newDispatchPlan()

	for i := range items {
		item := &items[i]
		if !item.HasStores() {
			plan.Skipped++
			continue
		}

		for j := range item.Stores {
			scope := &item.Stores[j]
			dest, ok := stores.Resolve(scope.StoreNumber)
			if !ok {
				plan.Skipped++
				continue
			}

			if scope.ShouldDelete() {
				plan.addDelete(dest, item.ItemID)
				continue
			}

			label, err := transformer.Transform(item, scope)
			if err != nil {
				plan.Errors = append(plan.Errors, fmt.Sprintf("Transform failed for %s: %v", item.ItemID, err))
				continue
			}
			plan.addUpsert(dest, *label)
		}
	}

	return plan
}

// Package integration contains the label synchronization bounded context.
// It turns item updates from the Catapult point-of-sale feed into VUSION
// electronic shelf label items and decides, per destination store, what
// must be upserted and what must be removed.
//
// Key concepts:
//   - PosItem / StoreScope: an item as published by the POS, with one scope per store
//   - LabelItem: the item as the label cloud expects it, including string-only custom fields
//   - LabelTransformer: pure derivation of a LabelItem from an item and one of its scopes
//   - StoreMap: read-only allow-list mapping POS store numbers to label store ids
//   - DispatchPlan: per-destination-store upserts and deletes for one request
//   - LabelSink: port implemented by the label cloud client
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration

// Package resolver replaces encrypted secret references in a configuration
// tree with their plaintext.
//
// Resolution runs one goroutine per scope and, within a scope, one goroutine
// per cipher reference. Each goroutine issues exactly one decryption request
// and, on success, overwrites exactly its own entry. A failure fails the
// owning scope and the tree, but never cancels sibling requests and never
// rolls back entries that were already overwritten:
//
//	r := resolver.NewResolver(resolver.Config{Region: "eu-west-1"}, decrypter, log, nil)
//	if err := r.ResolveTree(ctx, tree); err != nil {
//		// some entries may already hold plaintext
//	}
//
// Regions are chosen by precedence, lowest to highest: Config.DefaultRegion,
// Config.Region, then the region named by the reference itself. An inline
// reference without a region segment always uses Config.DefaultRegion.
//
// ProjectToProcessEnvironment copies an already resolved tree into an
// environment sink, with unit values taking precedence over shared ones.
package resolver

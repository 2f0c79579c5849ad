package metadata

import (
	"context"
	"regexp"

	"github.com/kadirbelkuyu/chkit/internal/schema"
)

var replacingEngine = regexp.MustCompile(`^(Replicated)?ReplacingMergeTree`)

// Capabilities describes what the engine behind the metadata table needs
// from readers.
type Capabilities struct {
	// FinalRead forces merge-on-read deduplication. Engines that only
	// collapse duplicate keys in background merges need it for a read to
	// see a single row per key.
	FinalRead bool
}

// CapabilitiesFor derives the capabilities of an engine clause such as
// "ReplacingMergeTree(created_at) PARTITION BY key ORDER BY key".
func CapabilitiesFor(engine string) Capabilities {
	return Capabilities{FinalRead: replacingEngine.MatchString(engine)}
}

// DefaultCapabilities matches the table CreateTable provisions.
func DefaultCapabilities() Capabilities {
	return CapabilitiesFor(tableEngine)
}

// DetectCapabilities inspects the live table once. The physical table is
// looked at, so a Distributed façade reports the engine it routes to.
func DetectCapabilities(ctx context.Context, catalog schema.Catalog, opts Options) (Capabilities, error) {
	options, err := catalog.TableOptions(ctx, opts.definition().LocalName())
	if err != nil {
		return Capabilities{}, err
	}
	return CapabilitiesFor(options.Options), nil
}

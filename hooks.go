package typedcache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "expired", "decode"}
	SelfHeal(storageKey, reason string)

	// Store returned ok=false on Set (backpressure/admission refusal).
	StoreSetRejected(storageKey string)

	// The result of this load was shared between concurrent callers.
	// Fires once per caller that took part.
	LoadShared(key string)

	// A load failed; the error was delivered to every waiter.
	LoadError(key string, err error)

	// A computed value was not written back.
	// reason ∈ {"epoch_moved", "epoch_error"}
	LoadDiscarded(key, reason string)

	// The epoch source failed. Reads proceed; loads skip their write-back.
	EpochError(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)      {}
func (NopHooks) StoreSetRejected(string)      {}
func (NopHooks) LoadShared(string)            {}
func (NopHooks) LoadError(string, error)      {}
func (NopHooks) LoadDiscarded(string, string) {}
func (NopHooks) EpochError(string, error)     {}

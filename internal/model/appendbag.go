package model

import "strings"

// redactedAppendValue is substituted for a secret-flagged value by
// Render, so that a bag holding a confidential token (e.g. pckey) can
// still be logged or reported over the control protocol safely.
const redactedAppendValue = "REDACTED"

// AppendBag is an ordered mapping from a short bootloader-append key to
// its string value. An empty value means the key is a bare flag (no
// "=value" suffix is emitted). Iteration and rendering always follow
// insertion order; setting an existing key updates its value in place
// without moving it.
type AppendBag struct {
	order  []string
	value  map[string]string
	secret map[string]bool
}

// NewAppendBag returns an empty AppendBag.
func NewAppendBag() *AppendBag {
	return &AppendBag{value: make(map[string]string)}
}

// Set inserts key=value, or updates value in place if key is already
// present, preserving its original position.
func (b *AppendBag) Set(key, value string) {
	if b.value == nil {
		b.value = make(map[string]string)
	}
	if _, ok := b.value[key]; !ok {
		b.order = append(b.order, key)
	}
	b.value[key] = value
}

// SetSecret inserts key=value like Set, but flags value as confidential:
// Render emits "key=REDACTED" for it, and only RenderUnredacted ever
// surfaces the real value. Used for pckey, which must never reach a log
// line or a control-protocol reply in plaintext.
func (b *AppendBag) SetSecret(key, value string) {
	b.Set(key, value)
	if b.secret == nil {
		b.secret = make(map[string]bool)
	}
	b.secret[key] = true
}

// IsSecret reports whether key was inserted via SetSecret.
func (b *AppendBag) IsSecret(key string) bool {
	return b.secret != nil && b.secret[key]
}

// Get returns the value for key and whether it is present.
func (b *AppendBag) Get(key string) (string, bool) {
	if b.value == nil {
		return "", false
	}
	v, ok := b.value[key]
	return v, ok
}

// Has reports whether key is present, regardless of its value.
func (b *AppendBag) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Delete removes key, if present.
func (b *AppendBag) Delete(key string) {
	if b.value == nil {
		return
	}
	if _, ok := b.value[key]; !ok {
		return
	}
	delete(b.value, key)
	if b.secret != nil {
		delete(b.secret, key)
	}
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (b *AppendBag) Keys() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// MergeOver applies other on top of b: values in other take precedence
// for keys present in both, new keys from other are appended after b's
// existing keys in other's iteration order. A secret flag on a key in
// other carries over onto b's copy of that key.
func (b *AppendBag) MergeOver(other *AppendBag) {
	if other == nil {
		return
	}
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		if other.IsSecret(k) {
			b.SetSecret(k, v)
		} else {
			b.Set(k, v)
		}
	}
}

// Clone returns an independent copy of b.
func (b *AppendBag) Clone() *AppendBag {
	c := NewAppendBag()
	for _, k := range b.Keys() {
		v, _ := b.Get(k)
		if b.IsSecret(k) {
			c.SetSecret(k, v)
		} else {
			c.Set(k, v)
		}
	}
	return c
}

// Render formats the bag as space-separated "key" or "key=value" tokens,
// in insertion order, with any secret-flagged value redacted. This is
// what reaches logs and the control protocol's "status" reply.
func (b *AppendBag) Render() string {
	return b.render(true)
}

// RenderUnredacted formats the bag like Render, but with secret-flagged
// values left intact. Only the boot-config writer's actual FIFO payload
// is allowed to call this.
func (b *AppendBag) RenderUnredacted() string {
	return b.render(false)
}

func (b *AppendBag) render(redact bool) string {
	tokens := make([]string, 0, len(b.order))
	for _, k := range b.order {
		v := b.value[k]
		if redact && v != "" && b.IsSecret(k) {
			v = redactedAppendValue
		}
		if v == "" {
			tokens = append(tokens, k)
		} else {
			tokens = append(tokens, k+"="+v)
		}
	}
	return strings.Join(tokens, " ")
}

// TokenizeAppend parses whitespace-separated "key" or "key=value" tokens
// into a new AppendBag, in the order they appear.
func TokenizeAppend(s string) *AppendBag {
	bag := NewAppendBag()
	for _, tok := range strings.Fields(s) {
		key, value, _ := strings.Cut(tok, "=")
		bag.Set(key, value)
	}
	return bag
}

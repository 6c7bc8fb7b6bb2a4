package feed

import (
	"fmt"
	"testing"

	"launchfeed/internal/domain"
	"launchfeed/internal/mapping"
)

func strPtr(s string) *string { return &s }

func updateWith(address string, patch domain.TokenPatch) *domain.TokenUpdate {
	return &domain.TokenUpdate{Address: address, Patch: patch}
}

func TestCollection_UpsertCreatesSkeleton(t *testing.T) {
	c := NewCollection(0)

	rec, _ := c.ApplyUpdate(updateWith("abc", domain.TokenPatch{Price: strPtr("$0.02")}))

	if rec.Address != "abc" {
		t.Errorf("Address = %q", rec.Address)
	}
	if rec.Price != "$0.02" {
		t.Errorf("Price = %q", rec.Price)
	}
	if rec.Volume != "-" || rec.MarketCap != "-" {
		t.Errorf("skeleton defaults missing: %q/%q", rec.Volume, rec.MarketCap)
	}
	if rec.LastUpdated == "" {
		t.Error("new record must be stamped with a time")
	}
}

func TestCollection_FieldLevelMerge(t *testing.T) {
	c := NewCollection(0)

	c.SeedRecord(mapped("abc", "Foo", "$0.01"))
	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{Price: strPtr("$0.02")}))

	rec, ok := c.Get("abc")
	if !ok {
		t.Fatal("record missing")
	}
	if rec.Price != "$0.02" {
		t.Errorf("Price = %q, want $0.02", rec.Price)
	}
	if rec.Name != "Foo" {
		t.Errorf("Name = %q, absent patch fields must keep prior values", rec.Name)
	}

	// The updated record moves to the front.
	if got := c.Snapshot()[0].Address; got != "abc" {
		t.Errorf("front = %q, want abc", got)
	}
}

func TestCollection_Idempotence(t *testing.T) {
	c := NewCollection(0)
	c.SeedRecord(mapped("abc", "Foo", "$0.01"))
	c.SeedRecord(mapped("def", "Bar", "$1.00"))

	patch := domain.TokenPatch{Price: strPtr("$0.02"), Buys: int64Ptr(7)}

	c.ApplyUpdate(updateWith("abc", patch))
	first := c.Snapshot()
	c.ApplyUpdate(updateWith("abc", patch))
	second := c.Snapshot()

	if len(first) != len(second) {
		t.Fatalf("sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("record %d differs after identical reapply:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestCollection_Uniqueness(t *testing.T) {
	c := NewCollection(0)
	for i := 0; i < 50; i++ {
		addr := fmt.Sprintf("tok%d", i%10)
		c.ApplyUpdate(updateWith(addr, domain.TokenPatch{Buys: int64Ptr(int64(i))}))
	}

	seen := map[string]bool{}
	for _, rec := range c.Snapshot() {
		if seen[rec.Address] {
			t.Fatalf("duplicate identity %q in collection", rec.Address)
		}
		seen[rec.Address] = true
	}
	if c.Len() != 10 {
		t.Errorf("Len = %d, want 10", c.Len())
	}
}

func TestCollection_BoundedSizeAndEvictionOrder(t *testing.T) {
	c := NewCollection(3)

	for _, addr := range []string{"a", "b", "c", "d"} {
		c.ApplyUpdate(updateWith(addr, domain.TokenPatch{}))
	}

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest record should have been evicted")
	}
	if _, ok := c.Get("d"); !ok {
		t.Error("newest record must never be evicted")
	}

	// Touching an old record rescues it from the tail.
	c.ApplyUpdate(updateWith("b", domain.TokenPatch{}))
	c.ApplyUpdate(updateWith("e", domain.TokenPatch{}))
	if _, ok := c.Get("b"); !ok {
		t.Error("recently touched record should survive eviction")
	}
	if _, ok := c.Get("c"); ok {
		t.Error("untouched tail record should have been evicted")
	}
}

func TestCollection_IconMonotonicity(t *testing.T) {
	c := NewCollection(0)

	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{PhotoIcon: strPtr("https://cdn/x.png")}))

	// A patch with no icon must not reset the existing one.
	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{Price: strPtr("$1")}))

	rec, _ := c.Get("abc")
	if rec.Icon != "https://cdn/x.png" {
		t.Errorf("Icon = %q, valid icon must never regress", rec.Icon)
	}
}

func TestCollection_IconPrecedence(t *testing.T) {
	c := NewCollection(0)

	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{
		PhotoIcon: strPtr("photo.png"),
		Icon:      strPtr("weak.png"),
	}))
	rec, _ := c.Get("abc")
	if rec.Icon != "photo.png" {
		t.Errorf("Icon = %q, photo-derived icon must win over patch icon", rec.Icon)
	}
}

func TestCollection_MintTimeFallback(t *testing.T) {
	c := NewCollection(0)

	u := updateWith("abc", domain.TokenPatch{})
	u.MintTimeMs = 1700000000000
	rec, _ := c.ApplyUpdate(u)
	if rec.LastUpdated == "" {
		t.Fatal("mint time should stamp the record")
	}

	// An explicit patch time wins over mint time.
	u2 := updateWith("abc", domain.TokenPatch{LastUpdated: strPtr("explicit")})
	u2.MintTimeMs = 1700000000000
	rec2, _ := c.ApplyUpdate(u2)
	if rec2.LastUpdated != "explicit" {
		t.Errorf("LastUpdated = %q, explicit patch time must win", rec2.LastUpdated)
	}
}

func TestCollection_SeedMergesWithEarlierUpdates(t *testing.T) {
	c := NewCollection(0)

	// Push event arrives before the snapshot completes.
	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{Price: strPtr("$0.05")}))

	seed := mapped("abc", "Foo", "-")
	c.SeedRecord(seed)

	rec, _ := c.Get("abc")
	if rec.Name != "Foo" {
		t.Errorf("Name = %q, snapshot should fill missing statics", rec.Name)
	}
	if rec.Price != "$0.05" {
		t.Errorf("Price = %q, snapshot default must not clobber live data", rec.Price)
	}
}

func TestCollection_ApplyMetadata(t *testing.T) {
	c := NewCollection(0)
	c.ApplyUpdate(updateWith("abc", domain.TokenPatch{}))

	if !c.ApplyMetadata("abc", "https://gw/img.png", "Meta Name", "meta description") {
		t.Fatal("metadata should apply to a bare skeleton")
	}

	rec, _ := c.Get("abc")
	if rec.Icon != "https://gw/img.png" {
		t.Errorf("Icon = %q", rec.Icon)
	}
	if rec.Name != "Meta Name" || rec.Description != "meta description" {
		t.Errorf("Name/Description = %q/%q", rec.Name, rec.Description)
	}

	// A record with a real icon and name keeps them.
	c.ApplyMetadata("abc", "https://gw/other.png", "Other", "other")
	rec, _ = c.Get("abc")
	if rec.Icon != "https://gw/img.png" || rec.Name != "Meta Name" {
		t.Errorf("metadata must not overwrite usable values: %q %q", rec.Icon, rec.Name)
	}

	if c.ApplyMetadata("gone", "x.png", "", "") {
		t.Error("metadata for an evicted record is a no-op")
	}
}

func int64Ptr(n int64) *int64 { return &n }

// mapped builds a minimal snapshot-shaped record for merge tests.
func mapped(address, name, price string) domain.TokenRecord {
	rec := mapping.Skeleton(address)
	if name != "" {
		rec.Name = name
	}
	if price != "" {
		rec.Price = price
	}
	return rec
}

package profile

import (
	"context"
	"errors"
	"testing"
)

func sampleProfile() *Profile {
	return &Profile{
		UserID:              "user-1",
		LocationCounts:      map[string]float64{"Asia": 3, "Europe": 1},
		LocationPreferences: map[string]float64{"Asia": 2, "Europe": 1},
		CategoryCounts:      map[string]float64{"food": 2},
		CategoryPreferences: map[string]float64{"food": 1},
	}
}

func TestInMemoryStore_GetProfile(t *testing.T) {
	store := NewInMemoryStore()
	store.Put(sampleProfile())

	got, err := store.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.LocationCounts["Asia"] != 3 {
		t.Errorf("Asia count = %v, want 3", got.LocationCounts["Asia"])
	}
}

func TestInMemoryStore_NotFound(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.GetProfile(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestInMemoryStore_ReturnsCopy(t *testing.T) {
	store := NewInMemoryStore()
	original := sampleProfile()
	store.Put(original)

	// Mutating the caller's value must not affect the store
	original.LocationCounts["Asia"] = 100

	got, _ := store.GetProfile(context.Background(), "user-1")
	got.CategoryCounts["food"] = 99

	again, _ := store.GetProfile(context.Background(), "user-1")
	if again.LocationCounts["Asia"] != 3 {
		t.Errorf("store mutated through Put argument: %v", again.LocationCounts["Asia"])
	}
	if again.CategoryCounts["food"] != 2 {
		t.Errorf("store mutated through returned profile: %v", again.CategoryCounts["food"])
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	store.Put(sampleProfile())
	store.Delete("user-1")

	if _, err := store.GetProfile(context.Background(), "user-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound after delete, got %v", err)
	}
}

func TestProfile_CloneNil(t *testing.T) {
	var p *Profile
	if p.Clone() != nil {
		t.Error("Clone of nil profile should be nil")
	}

	partial := &Profile{UserID: "u"}
	c := partial.Clone()
	if c.LocationCounts != nil {
		t.Error("nil maps should stay nil")
	}
}

func TestDecodeDimension(t *testing.T) {
	var m map[string]float64
	if err := decodeDimension(nil, &m); err != nil {
		t.Fatalf("decodeDimension(nil) error = %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Errorf("expected empty map for NULL, got %v", m)
	}

	if err := decodeDimension([]byte(`{"Asia":1.5}`), &m); err != nil {
		t.Fatalf("decodeDimension error = %v", err)
	}
	if m["Asia"] != 1.5 {
		t.Errorf("Asia = %v, want 1.5", m["Asia"])
	}

	if err := decodeDimension([]byte(`{"Asia":"lots"}`), &m); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

package dialog

import (
	"context"
	"testing"
)

func TestStateGroup(t *testing.T) {
	tests := []struct {
		state State
		want  Group
	}{
		{StateIdle, GroupNone},
		{State("unknown"), GroupNone},
		{StateLogin, GroupOnboarding},
		{StateLoginPassword, GroupOnboarding},
		{StateRegEmail, GroupOnboarding},
		{StateItems, GroupMain},
		{StateItemDetail, GroupMain},
		{StateAddConfirm, GroupMain},
		{StateProfile, GroupMain},
	}
	for _, tt := range tests {
		if got := tt.state.Group(); got != tt.want {
			t.Errorf("%s.Group() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestMemoryRepo(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()

	it, err := r.Get(ctx, 1)
	if err != nil || it.State != StateIdle || len(it.Payload) != 0 {
		t.Fatalf("Get() on empty = %+v, %v", it, err)
	}

	if err := r.Set(ctx, 1, StateAddQty, Payload{"name": "Лён", "last_mid": 12}); err != nil {
		t.Fatal(err)
	}
	it, _ = r.Get(ctx, 1)
	if it.State != StateAddQty {
		t.Errorf("state = %s", it.State)
	}
	if s, ok := GetString(it.Payload, "name"); !ok || s != "Лён" {
		t.Errorf("name = %q, %v", s, ok)
	}
	if n, ok := GetInt64(it.Payload, "last_mid"); !ok || n != 12 {
		t.Errorf("last_mid = %d, %v", n, ok)
	}

	_ = r.Reset(ctx, 1)
	if it, _ := r.Get(ctx, 1); it.State != StateIdle {
		t.Errorf("state after Reset = %s", it.State)
	}
}

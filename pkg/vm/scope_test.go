package vm

import (
	"testing"

	"github.com/zurustar/stcr/pkg/value"
)

func TestScope_Set(t *testing.T) {
	tests := []struct {
		name    string
		initial *value.Value
		set     value.Value
		changed bool
	}{
		{"new variable", nil, value.New("1"), true},
		{"unset to NULL", nil, value.New("NULL"), false},
		{"same string", ptr(value.New("a")), value.New("a"), false},
		{"different string", ptr(value.New("a")), value.New("b"), true},
		{"same bool", ptr(value.New("TRUE")), value.New("true"), false},
		{"bool vs string", ptr(value.New("true")), value.Datum(1), true},
		{"value to NULL", ptr(value.New("a")), value.New("NULL"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScope()
			if tt.initial != nil {
				s.Set("$x", *tt.initial)
			}
			if got := s.Set("$x", tt.set); got != tt.changed {
				t.Errorf("Set() = %v, want %v", got, tt.changed)
			}
			got, _ := s.Get("$x")
			if tt.changed && !got.Equal(tt.set) {
				t.Errorf("stored %v, want %v", got.Raw(), tt.set.Raw())
			}
		})
	}
}

func TestScope_GetUnset(t *testing.T) {
	s := NewScope()
	v, ok := s.Get("$missing")
	if ok {
		t.Error("Get() reported an unset variable as found")
	}
	if !v.IsNull() {
		t.Errorf("Get() = %v, want NULL", v.Raw())
	}
}

func TestScope_NamesAndClear(t *testing.T) {
	s := NewScope()
	s.Set("$b", value.New("2"))
	s.Set("$a", value.New("1"))

	names := s.Names()
	if len(names) != 2 || names[0] != "$a" || names[1] != "$b" {
		t.Errorf("Names() = %v, want [$a $b]", names)
	}

	snap := s.Snapshot()
	s.Delete("$a")
	if _, ok := snap["$a"]; !ok {
		t.Error("Snapshot() should not track later changes")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
}

func ptr(v value.Value) *value.Value { return &v }

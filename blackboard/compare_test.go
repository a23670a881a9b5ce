package blackboard

import "testing"

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		want   int
		wantOK bool
	}{
		{name: "int vs int", a: 15, b: 20, want: -1, wantOK: true},
		{name: "float vs int", a: 25.0, b: 20, want: 1, wantOK: true},
		{name: "int vs float equal", a: 20, b: 20.0, want: 0, wantOK: true},
		{name: "int64 vs float32", a: int64(3), b: float32(4), want: -1, wantOK: true},
		{name: "strings", a: "alpha", b: "beta", want: -1, wantOK: true},
		{name: "string vs number", a: "5", b: 5, want: 0, wantOK: false},
		{name: "bools not ordered", a: true, b: false, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("Compare(%v, %v) ok = %v, want %v", tt.a, tt.b, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "numeric coercion", a: 20, b: 20.0, want: true},
		{name: "numeric mismatch", a: 20, b: 21, want: false},
		{name: "bools", a: true, b: true, want: true},
		{name: "bool vs number", a: true, b: 1, want: false},
		{name: "maps deep equal", a: map[string]any{"x": 1}, b: map[string]any{"x": 1}, want: true},
		{name: "nil vs nil", a: nil, b: nil, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

package envutil

import "testing"

func TestGetBoolOrFallback(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback bool
		want     bool
	}{
		{name: "unset", value: "", fallback: true, want: true},
		{name: "true", value: "true", want: true},
		{name: "zero", value: "0", fallback: true, want: false},
		{name: "malformed", value: "yes please", fallback: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CPUPROF_TEST_BOOL", tt.value)
			if got := GetBoolOrFallback("CPUPROF_TEST_BOOL", tt.fallback); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetEnvOrFallback(t *testing.T) {
	t.Setenv("CPUPROF_TEST_STRING", "")
	if got := GetEnvOrFallback("CPUPROF_TEST_STRING", "development"); got != "development" {
		t.Fatalf("expected the fallback, got %q", got)
	}
	t.Setenv("CPUPROF_TEST_STRING", "production")
	if got := GetEnvOrFallback("CPUPROF_TEST_STRING", "development"); got != "production" {
		t.Fatalf("expected the value, got %q", got)
	}
}

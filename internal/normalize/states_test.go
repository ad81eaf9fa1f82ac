package normalize

import "testing"

func TestStateTable_Code(t *testing.T) {
	st := NewStateTable()
	if st.Len() != 51 {
		t.Fatalf("len=%d want 51", st.Len())
	}

	cases := []struct {
		in   string
		want string
	}{
		{"California", "CA"},
		{"  california ", "CA"},
		{"CALIFORNIA", "CA"},
		{"new   york", "NY"},
		{"District of Columbia", "DC"},
		{"ca", "CA"},
		{"CA", "CA"},
		{"Puerto Rico", ""},
		{"XX", ""},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := st.Code(tc.in); got != tc.want {
			t.Errorf("Code(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestStateTable_Idempotent(t *testing.T) {
	st := NewStateTable()
	for _, sc := range stateCodes {
		code := st.Code(sc[0])
		if code != sc[1] {
			t.Fatalf("Code(%q)=%q want %q", sc[0], code, sc[1])
		}
		if again := st.Code(code); again != code {
			t.Fatalf("Code(%q)=%q, not idempotent", code, again)
		}
	}
}

func TestStateTable_ZeroValue(t *testing.T) {
	var st StateTable
	if got := st.Code("Texas"); got != "" {
		t.Fatalf("zero table mapped Texas to %q", got)
	}
}

package signing

import "testing"

func TestAllComplete(t *testing.T) {
	cases := []struct {
		total     int
		completed int
		want      bool
	}{
		{0, 0, false}, // no invitations never counts as complete
		{1, 0, false},
		{1, 1, true},
		{3, 2, false},
		{3, 3, true},
	}

	for _, c := range cases {
		if got := AllComplete(c.total, c.completed); got != c.want {
			t.Errorf("AllComplete(%d, %d) = %v, want %v", c.total, c.completed, got, c.want)
		}
	}
}

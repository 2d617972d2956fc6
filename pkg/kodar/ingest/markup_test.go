package ingest

import "testing"

func TestStripMarkup(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain title", "plain title"},
		{"<b>Linked</b> <i>Data</i>", "Linked Data"},
		{"Graphs &amp; Trees", "Graphs & Trees"},
		{"<p>one</p><script>alert(1)</script><p>two</p>", "one two"},
		{"  <span>\n spaced \t</span> ", "spaced"},
	}
	for _, tc := range cases {
		if got := StripMarkup(tc.in); got != tc.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

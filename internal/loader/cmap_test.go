package loader

import "testing"

func Test_ParseToUnicode(t *testing.T) {
	t.Parallel()
	program := []byte(`/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0024> <0050>
<0003> <0020>
endbfchar
2 beginbfrange
<0044> <0046> <0061>
<0050> <0051> [<2013> <201C>]
endbfrange
endcmap
end
end`)
	cm := parseToUnicode(program, 2)
	if cm == nil {
		t.Fatal("parseToUnicode returned nil")
	}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bfchar", raw: "\x00\x24", want: "P"},
		{name: "bfrange base advances", raw: "\x00\x44\x00\x45\x00\x46", want: "abc"},
		{name: "bfrange array", raw: "\x00\x50\x00\x51", want: "–“"},
		{name: "unmapped code dropped", raw: "\x00\x24\x01\x99\x00\x03\x00\x44", want: "P a"},
		{name: "odd trailing byte dropped", raw: "\x00\x24\x00", want: "P"},
		{name: "empty", raw: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cm.Decode(tc.raw); got != tc.want {
				t.Errorf("Decode(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func Test_ParseToUnicode_NoCodespace(t *testing.T) {
	t.Parallel()
	// Simple fonts often omit the codespace; codes are then single bytes.
	cm := parseToUnicode([]byte("1 beginbfchar <41> <00C5> endbfchar"), 1)
	if cm == nil {
		t.Fatal("parseToUnicode returned nil")
	}
	if got := cm.Decode("AAB"); got != "ÅÅ" {
		t.Errorf("Decode = %q, want %q", got, "ÅÅ")
	}
}

func Test_ParseToUnicode_Empty(t *testing.T) {
	t.Parallel()
	cases := []string{
		"",
		"begincmap 1 begincodespacerange <00> <FF> endcodespacerange endcmap",
		"garbage ( unterminated",
	}
	for _, program := range cases {
		if cm := parseToUnicode([]byte(program), 2); cm != nil {
			t.Errorf("parseToUnicode(%q) = %+v, want nil", program, cm)
		}
	}
}

package pinyin

import "testing"

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two syllables with space", "ni3 hao3", "nǐ hǎo"},
		{"v maps to umlaut u before toning", "lv4", "lǜ"},
		{"u colon digraph maps to umlaut u", "nu:3", "nǚ"},
		{"last vowel rule for iu", "liu2", "liú"},
		{"last vowel rule for ui", "hui4", "huì"},
		{"a takes priority over o", "hao3", "hǎo"},
		{"e takes priority in ei", "mei2", "méi"},
		{"literal ou marks the o", "dou1", "dōu"},
		{"three vowel run marks a", "jiao4", "jiào"},
		{"neutral tone drops the digit", "ma5", "ma"},
		{"first tone", "ma1", "mā"},
		{"uppercase vowel keeps case", "Ni3", "Nǐ"},
		{"uppercase v", "LV4", "LǛ"},
		{"multiple syllables no spaces", "ni3hao3", "nǐhǎo"},
		{"mixed toned and plain text", "say ni3 hao3 to them", "say nǐ hǎo to them"},
		{"no tone digit passes through", "hao", "hao"},
		{"digit without vowel passes through", "x4", "x4"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convert(tt.in); got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvert_Idempotent(t *testing.T) {
	inputs := []string{"ni3 hao3", "lv4", "liu2", "wo3 xiang3 he1 cha2"}
	for _, in := range inputs {
		once := Convert(in)
		twice := Convert(once)
		if once != twice {
			t.Errorf("Convert not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

package loader

import (
	"context"
	"strings"
	"testing"
)

func Test_MarkdownToText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "heading and emphasis",
			in:   "# Annual leave\n\nEmployees get **15 days** per _year_.\n",
			want: "Annual leave\n\nEmployees get 15 days per year.",
		},
		{
			name: "tight list",
			in:   "Leave types:\n\n- Vacation\n- Sick leave\n- Bereavement\n",
			want: "Leave types:\n\n- Vacation\n- Sick leave\n- Bereavement",
		},
		{
			name: "links keep their text",
			in:   "See the [benefits portal](https://hr.example.com) or <https://hr.example.com/faq>.",
			want: "See the benefits portal or https://hr.example.com/faq.",
		},
		{
			name: "code kept, raw html dropped",
			in:   "Use form `HR-12`.\n\n<div class=\"note\">internal</div>\n\n```\napprove(request)\n```\n",
			want: "Use form HR-12.\n\napprove(request)",
		},
		{
			name: "table",
			in:   "| Type | Days |\n|------|------|\n| Vacation | 15 |\n| Sick | 8 |\n",
			want: "Type | Days\nVacation | 15\nSick | 8",
		},
		{
			name: "sections stay paragraph separated",
			in:   "## Eligibility\nFull-time staff.\n## Accrual\nMonthly.",
			want: "Eligibility\n\nFull-time staff.\n\nAccrual\n\nMonthly.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := markdownToText(tc.in); got != tc.want {
				t.Errorf("markdownToText =\n%q\nwant\n%q", got, tc.want)
			}
		})
	}
}

func Test_Load_HTML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	page := writeFile(t, dir, "handbook.html", `<html><body>
<h1>Remote work</h1>
<p>Staff may work remotely <strong>two days</strong> a week.</p>
<ul><li>Manager approval required</li><li>Core hours 10-3</li></ul>
</body></html>`)

	docs, errs := New().Load(context.Background(), []string{page})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	text := docs[0].Text
	for _, want := range []string{"Remote work", "Staff may work remotely two days a week.", "- Manager approval required", "- Core hours 10-3"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, markup := range []string{"<", "**", "# "} {
		if strings.Contains(text, markup) {
			t.Errorf("text still contains %q:\n%s", markup, text)
		}
	}
}

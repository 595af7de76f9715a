package reply

import "testing"

func TestLatestContent(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "plain body untouched",
			body: "Hello,\nplease review the attached report.\nThanks",
			want: "Hello,\nplease review the attached report.\nThanks",
		},
		{
			name: "stops at on-wrote marker",
			body: "Hi there\n\nOn Mon, Jan 1, 2024 John wrote:\n> old line one\n> old line two",
			want: "Hi there",
		},
		{
			name: "on-wrote marker is case-insensitive",
			body: "Sounds good\non Tue, 2 Feb 2024 at 10:11, Ana Torres wrote:\n> earlier",
			want: "Sounds good",
		},
		{
			name: "marker mid-sentence does not stop",
			body: "On reflection I agree with what he wrote: go ahead\nSecond line",
			want: "On reflection I agree with what he wrote: go ahead\nSecond line",
		},
		{
			name: "stops at original message separator",
			body: "New content\n-----Original Message-----\nFrom: someone@example.com\nOld body",
			want: "New content",
		},
		{
			name: "separator case-insensitive with space",
			body: "Reply text\n-- original message\nold",
			want: "Reply text",
		},
		{
			name: "bare hyphen run stops",
			body: "Latest\n----\nQuoted history",
			want: "Latest",
		},
		{
			name: "underscore divider stops",
			body: "Fresh reply\n________________________________\nFrom: a@b.c",
			want: "Fresh reply",
		},
		{
			name: "single hyphen does not stop",
			body: "First\n-\nSecond",
			want: "First\n-\nSecond",
		},
		{
			name: "quoted lines skipped without stopping",
			body: "Top\n> quoted one\ninterleaved\n> quoted two\nbottom",
			want: "Top\ninterleaved\nbottom",
		},
		{
			name: "entirely quoted body yields empty",
			body: "> line one\n> line two\n>\n> line three",
			want: "",
		},
		{
			name: "crlf line endings",
			body: "Hi there\r\n\r\nOn Mon, Jan 1, 2024 John wrote:\r\n> old",
			want: "Hi there",
		},
		{
			name: "surrounding whitespace trimmed",
			body: "\n\n  Answer below.  \n\nOn Fri, some one wrote:\n> q\n",
			want: "Answer below.",
		},
		{
			name: "empty body",
			body: "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := LatestContent(tc.body)
			if got != tc.want {
				t.Fatalf("LatestContent got %q want %q", got, tc.want)
			}
		})
	}
}

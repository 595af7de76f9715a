package skills

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func writeSkill(t *testing.T, dir, slug, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, slug)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const sampleDoc = `---
name: salesforce-browser
description: Drive Salesforce through the browser.
channels: [gmail, mailgun]
hints:
  login_url: https://login.salesforce.com
---

# Salesforce

Open the login URL and sign in.
`

func TestLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "salesforce-browser", sampleDoc)
	writeSkill(t, dir, "voice", `---
name: voice-call-script
channels: [vapi]
---
# Voice

Speak clearly.
`)

	lib, err := Load(discardLogger(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Count() != 2 {
		t.Fatalf("count = %d", lib.Count())
	}

	names := make([]string, 0, 2)
	for _, s := range lib.List() {
		names = append(names, s.Name)
	}
	if names[0] != "salesforce-browser" || names[1] != "voice-call-script" {
		t.Fatalf("names = %v", names)
	}

	skill, err := lib.Get("salesforce-browser")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if skill.Description != "Drive Salesforce through the browser." {
		t.Fatalf("description = %q", skill.Description)
	}
	if skill.Hints["login_url"] != "https://login.salesforce.com" {
		t.Fatalf("hints = %v", skill.Hints)
	}
	if !strings.HasPrefix(skill.Body, "# Salesforce") {
		t.Fatalf("body = %q", skill.Body)
	}

	if _, err := lib.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	lib, err := Load(discardLogger(), filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Count() != 0 {
		t.Fatalf("count = %d", lib.Count())
	}

	lib, err = Load(discardLogger(), "")
	if err != nil || lib.Count() != 0 {
		t.Fatalf("empty dir: lib=%v err=%v", lib.Count(), err)
	}
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no frontmatter",
			content: "# Just markdown\n",
			wantErr: "missing frontmatter",
		},
		{
			name:    "unterminated frontmatter",
			content: "---\nname: x\n",
			wantErr: "unterminated",
		},
		{
			name:    "missing name",
			content: "---\ndescription: d\n---\nbody\n",
			wantErr: "name is required",
		},
		{
			name:    "path characters in name",
			content: "---\nname: ../escape\n---\nbody\n",
			wantErr: "invalid skill name",
		},
		{
			name:    "empty body",
			content: "---\nname: x\n---\n\n",
			wantErr: "body is empty",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSkill(t, dir, "bad", tc.content)
			_, err := Load(discardLogger(), dir)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "one", "---\nname: same\n---\nbody one\n")
	writeSkill(t, dir, "two", "---\nname: same\n---\nbody two\n")
	_, err := Load(discardLogger(), dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate skill name") {
		t.Fatalf("err = %v", err)
	}
}

func TestForChannel(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "email-only", "---\nname: email-only\nchannels: [gmail]\n---\nbody\n")
	writeSkill(t, dir, "everywhere", "---\nname: everywhere\n---\nbody\n")

	lib, err := Load(discardLogger(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	gmail := lib.ForChannel("gmail")
	if len(gmail) != 2 {
		t.Fatalf("gmail skills = %d", len(gmail))
	}
	vapi := lib.ForChannel("vapi")
	if len(vapi) != 1 || vapi[0].Name != "everywhere" {
		t.Fatalf("vapi skills = %+v", vapi)
	}
}

func TestRenderHTML(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "s", "---\nname: s\n---\n# Heading\n\nSome *text*.\n")

	lib, err := Load(discardLogger(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	html, err := lib.RenderHTML("s")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if !strings.Contains(string(html), "<h1") || !strings.Contains(string(html), "<em>text</em>") {
		t.Fatalf("html = %s", html)
	}

	if _, err := lib.RenderHTML("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestShippedSkillsParse(t *testing.T) {
	lib, err := Load(discardLogger(), filepath.Join("..", "..", "skills"))
	if err != nil {
		t.Fatalf("Load shipped skills: %v", err)
	}
	if lib.Count() != 2 {
		t.Fatalf("count = %d", lib.Count())
	}
	if _, err := lib.Get("salesforce-browser"); err != nil {
		t.Fatalf("salesforce-browser: %v", err)
	}
	voice, err := lib.Get("voice-call-script")
	if err != nil {
		t.Fatalf("voice-call-script: %v", err)
	}
	if !voice.AppliesTo("vapi") || voice.AppliesTo("gmail") {
		t.Fatalf("voice channels = %v", voice.Channels)
	}
}

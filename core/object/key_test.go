package object

import (
	"net/url"
	"strings"
	"testing"
)

func TestEncodePath(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "plain", key: "notes/math/lesson1.pdf", want: "notes/math/lesson1.pdf"},
		{name: "spaces", key: "notes/linear algebra/week 1.pdf", want: "notes/linear%20algebra/week%201.pdf"},
		{name: "hash", key: "photos/u1/pic#1.jpg", want: "photos/u1/pic%231.jpg"},
		{name: "percent", key: "files/100%.txt", want: "files/100%25.txt"},
		{name: "question mark", key: "quizzes/what?.json", want: "quizzes/what%3F.json"},
		{name: "single segment", key: "manifest.json", want: "manifest.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodePath(tt.key)
			if got != tt.want {
				t.Errorf("EncodePath(%q) = %q, want %q", tt.key, got, tt.want)
			}
			if strings.Count(got, "/") != strings.Count(tt.key, "/") {
				t.Errorf("EncodePath(%q) changed the slash count", tt.key)
			}
			// each segment must round-trip
			origSegs := strings.Split(tt.key, "/")
			for i, seg := range strings.Split(got, "/") {
				dec, err := url.PathUnescape(seg)
				if err != nil {
					t.Fatalf("PathUnescape(%q): %v", seg, err)
				}
				if dec != origSegs[i] {
					t.Errorf("segment %d: round-trip %q != %q", i, dec, origSegs[i])
				}
			}
		})
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    string
		wantErr error
	}{
		{name: "plain", key: "notes/math/lesson1.pdf", want: "notes/math/lesson1.pdf"},
		{name: "leading slash trimmed", key: "/photos/u1/pic.jpg", want: "photos/u1/pic.jpg"},
		{name: "surrounding space trimmed", key: "  transfer-proofs/u1/1.png ", want: "transfer-proofs/u1/1.png"},
		{name: "empty", key: "", wantErr: ErrEmptyKey},
		{name: "blank", key: "   ", wantErr: ErrEmptyKey},
		{name: "lone slash", key: "/", wantErr: ErrEmptyKey},
		{name: "double slash", key: "notes//lesson1.pdf", wantErr: ErrEmptySegment},
		{name: "trailing slash", key: "notes/math/", wantErr: ErrEmptySegment},
		{name: "dot segment", key: "notes/./lesson1.pdf", wantErr: ErrRelativeSegment},
		{name: "traversal", key: "notes/../secrets.txt", wantErr: ErrRelativeSegment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if err != tt.wantErr {
				t.Fatalf("CleanKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

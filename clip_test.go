package merger

import (
	"errors"
	"reflect"
	"testing"
)

func namedClips(names ...string) ClipList {
	clips := make(ClipList, len(names))
	for i, name := range names {
		clips[i] = Clip{Name: name, Open: func() (*ClipSource, error) { return &ClipSource{}, nil }}
	}
	return clips
}

func TestClipList_SortNatural(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			"numeric suffixes",
			[]string{"clip10.webm", "clip2.webm", "clip1.webm"},
			[]string{"clip1.webm", "clip2.webm", "clip10.webm"},
		},
		{
			"padded and unpadded",
			[]string{"take_003.webm", "take_1.webm", "take_02.webm"},
			[]string{"take_1.webm", "take_02.webm", "take_003.webm"},
		},
		{
			"plain lexicographic when no digits",
			[]string{"c.webm", "a.webm", "b.webm"},
			[]string{"a.webm", "b.webm", "c.webm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clips := namedClips(tt.input...)
			clips.SortNatural()
			if got := clips.Names(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SortNatural = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClipList_Validate(t *testing.T) {
	if err := (ClipList{}).Validate(); !errors.Is(err, ErrNoClips) {
		t.Errorf("empty list: expected ErrNoClips, got %v", err)
	}

	bad := ClipList{{Name: "broken"}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for clip without opener")
	}

	if err := namedClips("a.webm").Validate(); err != nil {
		t.Errorf("valid list: %v", err)
	}
}

func TestClipError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ClipError{Clip: "intro.webm", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("ClipError should unwrap to the inner error")
	}
	if err.Error() != `clip "intro.webm": boom` {
		t.Errorf("Error() = %q", err.Error())
	}
}
